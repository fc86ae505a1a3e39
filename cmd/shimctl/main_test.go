package main

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashSecretCommand(t *testing.T) {
	cmd := hashSecretCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--secret", "s3cret"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashSecretRequiresValue(t *testing.T) {
	_, err := hashSecret("")
	require.Error(t, err)
}

func TestGenerateKeyLength(t *testing.T) {
	a, err := generateKey()
	require.NoError(t, err)
	b, err := generateKey()
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}

type fakeArchive struct {
	objects map[string]string
	prefix  string
}

func (a *fakeArchive) List(_ context.Context, prefix string) ([]string, error) {
	a.prefix = prefix
	var keys []string
	for key := range a.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *fakeArchive) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return []byte(body), nil
}

func runArchive(t *testing.T, store archiveReader, args ...string) (string, error) {
	t.Helper()
	cmd := archiveCmd(func() (archiveReader, error) { return store, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestArchiveListFiltersByPrefix(t *testing.T) {
	store := &fakeArchive{objects: map[string]string{
		"withings/step_count/alice/2.json":     `{"status":0}`,
		"withings/step_count/alice/1.json":     `{"status":0}`,
		"withings/sleep_duration/alice/1.json": `{"status":0}`,
	}}

	out, err := runArchive(t, store, "list", "--prefix", "withings/step_count/")
	require.NoError(t, err)
	require.Equal(t, "withings/step_count/", store.prefix)
	require.Equal(t, "withings/step_count/alice/1.json\nwithings/step_count/alice/2.json\n", out)
}

func TestArchiveGetPrintsBody(t *testing.T) {
	store := &fakeArchive{objects: map[string]string{"withings/step_count/alice/1.json": `{"status":0}`}}

	out, err := runArchive(t, store, "get", "withings/step_count/alice/1.json")
	require.NoError(t, err)
	require.Equal(t, "{\"status\":0}\n", out)

	_, err = runArchive(t, store, "get", "withings/missing.json")
	require.ErrorContains(t, err, "withings/missing.json")

	_, err = runArchive(t, store, "get")
	require.Error(t, err)
}

func TestArchiveOpenFailureIsReturned(t *testing.T) {
	cmd := archiveCmd(func() (archiveReader, error) { return nil, errors.New("archive.enabled is false") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list"})
	require.ErrorContains(t, cmd.Execute(), "archive.enabled is false")
}
