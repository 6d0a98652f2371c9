package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/semitae/internal/domain"
)

// StatusFor maps an error code to its HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeInvalidTurn:
		return http.StatusForbidden
	case domain.CodeValidation:
		return http.StatusUnprocessableEntity
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeProcessingFailed, domain.CodeGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	body := domain.ToErrorBody(err)
	return c.JSON(StatusFor(body.Code), domain.ErrorResponse{Error: body})
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, domain.NewError(domain.CodeInvalidArgument, message))
}

func queryLimit(c echo.Context) int {
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			return val
		}
	}
	return 0
}
