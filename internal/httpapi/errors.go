package httpapi

import (
	"net/http"

	"spectral/pkg/errx"

	"github.com/danielgtaylor/huma/v2"
)

// mapErr 按错误码转换为 HTTP 状态
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	code := errx.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errx.CodeInvalidState, errx.CodeNothingToExport:
		status = http.StatusConflict
	case errx.CodeTargetNotFound:
		status = http.StatusNotFound
	case errx.CodeDevToolsUnreachable, errx.CodeAttachFailed:
		status = http.StatusBadGateway
	case errx.CodeInvalidArgument:
		status = http.StatusBadRequest
	}
	if code == "" {
		return huma.NewError(status, err.Error())
	}
	return huma.NewError(status, err.Error(), &huma.ErrorDetail{Location: "code", Value: string(code)})
}
