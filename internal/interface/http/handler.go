package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/yanqian/shim-server/internal/domain/auth"
	"github.com/yanqian/shim-server/internal/domain/shim"
	"github.com/yanqian/shim-server/pkg/util"
)

const dateLayout = "2006-01-02"

// Handler wires the HTTP transport to domain services.
type Handler struct {
	shimSvc  shim.Service
	authSvc  auth.Service
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(shimSvc shim.Service, authSvc auth.Service, logger *slog.Logger) *Handler {
	return &Handler{
		shimSvc:  shimSvc,
		authSvc:  authSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      util.NowUTC,
		logger:   logger.With("component", "http.handler"),
	}
}

type dataQuery struct {
	Username  string `form:"username" validate:"required"`
	DataType  string `form:"dataType" validate:"required"`
	Normalize string `form:"normalize" validate:"omitempty,boolean"`
	DateStart string `form:"dateStart"`
	DateEnd   string `form:"dateEnd"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IssueToken exchanges client credentials for an access token.
func (h *Handler) IssueToken(c *gin.Context) {
	var req auth.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, shim.CodeInvalidInput, errMessage(err), err))
		return
	}
	resp, err := h.authSvc.IssueToken(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListShims returns the registered shims and their data types.
func (h *Handler) ListShims(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"shims": h.shimSvc.Shims(c.Request.Context())})
}

// GetData retrieves one data type for a user from the named shim.
func (h *Handler) GetData(c *gin.Context) {
	var q dataQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, shim.CodeInvalidInput, errMessage(err), err))
		return
	}
	if err := h.validate.Struct(q); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, shim.CodeInvalidInput, validationMessage(err), err))
		return
	}

	normalize := true
	if q.Normalize != "" {
		normalize, _ = strconv.ParseBool(q.Normalize)
	}
	start, end, err := h.resolveRange(q.DateStart, q.DateEnd)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, shim.CodeInvalidInput, errMessage(err), err))
		return
	}

	resp, err := h.shimSvc.GetData(c.Request.Context(), shim.DataRequest{
		ShimKey:   c.Param("shim"),
		Username:  q.Username,
		DataType:  q.DataType,
		Start:     start,
		End:       end,
		Normalize: normalize,
	})
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAccounts returns every stored account without secrets.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.shimSvc.ListAccounts(c.Request.Context())
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// PutAccount stores the access parameters for a user of a shim.
func (h *Handler) PutAccount(c *gin.Context) {
	var req shim.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, shim.CodeInvalidInput, errMessage(err), err))
		return
	}
	req.ShimKey = c.Param("shim")
	req.Username = c.Param("username")

	view, err := h.shimSvc.SaveAccount(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetAccount returns one stored account without secrets.
func (h *Handler) GetAccount(c *gin.Context) {
	view, err := h.shimSvc.GetAccount(c.Request.Context(), c.Param("shim"), c.Param("username"))
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteAccount removes stored access parameters.
func (h *Handler) DeleteAccount(c *gin.Context) {
	if err := h.shimSvc.DeleteAccount(c.Request.Context(), c.Param("shim"), c.Param("username")); err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// resolveRange defaults the end to today and the start to one day before the end.
func (h *Handler) resolveRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	end := util.StartOfDay(h.now())
	if strings.TrimSpace(rawEnd) != "" {
		parsed, err := parseDate(rawEnd)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -1)
	if strings.TrimSpace(rawStart) != "" {
		parsed, err := parseDate(rawStart)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	return start, end, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", raw)
	}
	return t, nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errMessage(err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()[:1])+fe.Field()[1:]+" is "+describeTag(fe.Tag()))
	}
	return strings.Join(fields, "; ")
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "boolean":
		return "not a boolean"
	}
	return "invalid"
}
