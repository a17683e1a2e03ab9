package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/stmtimport/internal/ingest"
	"github.com/cleared-dev/stmtimport/internal/logging"
)

// AliveMessage is the body of the liveness endpoint.
const AliveMessage = "hello from server!"

// Ingester is the batch assembler as seen by the transport.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte) (*ingest.BatchResult, error)
}

// Actions holds the HTTP handlers.
type Actions struct {
	ingester     Ingester
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewActions creates the handlers. maxBodyBytes <= 0 disables the limit.
func NewActions(ingester Ingester, maxBodyBytes int64, logger zerolog.Logger) *Actions {
	return &Actions{ingester: ingester, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Alive answers the liveness probe.
func (a *Actions) Alive(ctx *gin.Context) {
	ctx.String(http.StatusOK, AliveMessage)
}

// PutData ingests one statement file. A text/plain body is read as the
// legacy byte list, anything else as the raw file.
func (a *Actions) PutData(ctx *gin.Context) {
	body := ctx.Request.Body
	if a.maxBodyBytes > 0 {
		body = http.MaxBytesReader(ctx.Writer, body, a.maxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("payload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("%w: %v", ingest.ErrTransport, err), http.StatusBadRequest)
		return
	}

	payload := raw
	if ctx.ContentType() == "text/plain" {
		payload, err = DecodeByteList(raw)
		if err != nil {
			uniresp.RespondWithErrorJSON(ctx, err, ingest.HTTPStatus(err))
			return
		}
	}

	reqCtx := logging.WithContext(ctx.Request.Context(), a.logger)
	res, err := a.ingester.Ingest(reqCtx, payload)
	if err != nil {
		a.logger.Error().Err(err).Int("bytes", len(payload)).Msg("upload failed")
		uniresp.RespondWithErrorJSON(ctx, err, ingest.HTTPStatus(err))
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, res)
}
