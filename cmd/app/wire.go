//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/shim-server/internal/bootstrap"
	"github.com/yanqian/shim-server/internal/domain/auth"
	"github.com/yanqian/shim-server/internal/domain/shim"
	"github.com/yanqian/shim-server/internal/infra/config"
	"github.com/yanqian/shim-server/internal/infra/transport"
	httpiface "github.com/yanqian/shim-server/internal/interface/http"
	"github.com/yanqian/shim-server/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideAuthConfig,
		provideShimConfig,
		provideAccountRepository,
		provideResponseCache,
		provideArchive,
		provideTransportClient,
		provideWithingsShim,
		provideShims,
		provideSyncer,
		shim.NewService,
		auth.NewService,
		wire.Bind(new(shim.Fetcher), new(*transport.Client)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
