// Package gateway exposes the engine over HTTP/JSON and NATS request-reply.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/engine"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/worker"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// CodeUnavailable is reported when the service is overloaded or the caller
// gave up before a compute slot was free.
const CodeUnavailable = "UNAVAILABLE"

// API adapts engine.Service to transport documents.
type API struct {
	svc     *engine.Service
	pool    *worker.Pool
	limiter *worker.Limiter
	logger  *zap.Logger
}

// NewAPI creates an API. pool and limiter are optional and only feed stats.
func NewAPI(svc *engine.Service, pool *worker.Pool, limiter *worker.Limiter, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{svc: svc, pool: pool, limiter: limiter, logger: logger}
}

func (a *API) GenerateKeys(ctx context.Context, req GenerateKeysRequest) (GenerateKeysResponse, error) {
	ps, err := fhe.ParseParameterSet(req.ParameterSet)
	if err != nil {
		return GenerateKeysResponse{}, errs.InvalidArgument("%v", err)
	}
	keys, err := a.svc.GenerateKeys(ctx, ps)
	if err != nil {
		return GenerateKeysResponse{}, err
	}
	return GenerateKeysResponse{
		ClientKeyID: string(keys.ClientKey),
		ServerKeyID: string(keys.ServerKey),
	}, nil
}

func (a *API) EncryptBoolean(ctx context.Context, req EncryptBooleanRequest) (EncryptResponse, error) {
	id, err := a.svc.EncryptBoolean(ctx, req.ClientKeyID, req.Value)
	if err != nil {
		return EncryptResponse{}, err
	}
	return a.encrypted(ctx, id, req.IncludeSerialized)
}

func (a *API) EncryptInteger(ctx context.Context, req EncryptIntegerRequest) (EncryptResponse, error) {
	id, err := a.svc.EncryptInteger(ctx, req.ClientKeyID, req.Value, req.NumBits)
	if err != nil {
		return EncryptResponse{}, err
	}
	return a.encrypted(ctx, id, req.IncludeSerialized)
}

func (a *API) encrypted(ctx context.Context, id string, include bool) (EncryptResponse, error) {
	resp := EncryptResponse{EncryptedDataID: id}
	if include {
		data, err := a.svc.Export(ctx, id)
		if err != nil {
			return EncryptResponse{}, err
		}
		resp.SerializedData = data
	}
	return resp, nil
}

func parseOperation(name string) (fhe.OperationType, error) {
	op, err := fhe.ParseOperation(name)
	if err != nil {
		return 0, errs.InvalidArgument("%v", err)
	}
	return op, nil
}

func (a *API) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error) {
	op, err := parseOperation(req.Operation)
	if err != nil {
		return EvaluateResponse{}, err
	}
	id, err := a.svc.Evaluate(ctx, req.ServerKeyID, op, req.OperandIDs)
	if err != nil {
		return EvaluateResponse{}, err
	}

	resp := EvaluateResponse{ResultID: id}
	if req.IncludeSerialized {
		if resp.SerializedResult, err = a.svc.Export(ctx, id); err != nil {
			return EvaluateResponse{}, err
		}
	}
	return resp, nil
}

func source(req DecryptRequest) engine.Source {
	return engine.Source{Handle: registry.Handle(req.EncryptedDataID), Inline: req.SerializedData}
}

func (a *API) DecryptBoolean(ctx context.Context, req DecryptRequest) (DecryptBooleanResponse, error) {
	v, err := a.svc.DecryptBoolean(ctx, req.ClientKeyID, source(req))
	return DecryptBooleanResponse{Value: v}, err
}

func (a *API) DecryptInteger(ctx context.Context, req DecryptRequest) (DecryptIntegerResponse, error) {
	v, err := a.svc.DecryptInteger(ctx, req.ClientKeyID, source(req))
	return DecryptIntegerResponse{Value: v}, err
}

func (a *API) Export(ctx context.Context, id string) (ExportResponse, error) {
	data, err := a.svc.Export(ctx, id)
	if err != nil {
		return ExportResponse{}, err
	}
	return ExportResponse{EncryptedDataID: id, SerializedData: data}, nil
}

func (a *API) SubmitJob(ctx context.Context, req SubmitJobRequest) (SubmitJobResponse, error) {
	op, err := parseOperation(req.Operation)
	if err != nil {
		return SubmitJobResponse{}, err
	}
	id, err := a.svc.SubmitJob(ctx, req.ServerKeyID, op, req.OperandIDs)
	return SubmitJobResponse{JobID: id}, err
}

func (a *API) Job(ctx context.Context, id string) (*JobResponse, error) {
	return a.svc.Job(ctx, id)
}

func (a *API) Stats(ctx context.Context, _ struct{}) (StatsResponse, error) {
	resp := StatsResponse{Stats: a.svc.Stats()}
	if a.pool != nil {
		jobs := a.pool.Stats()
		resp.Jobs = &jobs
	}
	if a.limiter != nil {
		resp.Compute = &ComputeStats{Slots: a.limiter.Slots(), Busy: a.limiter.Busy()}
	}
	return resp, nil
}

// endpoint is an operation reachable over both transports.
type endpoint struct {
	subject string
	pattern string
	call    func(ctx context.Context, body []byte) (any, error)
}

func (a *API) endpoints() []endpoint {
	return []endpoint{
		{"keys.generate", "POST /v1/keys", bind(a.GenerateKeys)},
		{"encrypt.boolean", "POST /v1/encrypt/boolean", bind(a.EncryptBoolean)},
		{"encrypt.integer", "POST /v1/encrypt/integer", bind(a.EncryptInteger)},
		{"evaluate", "POST /v1/evaluate", bind(a.Evaluate)},
		{"decrypt.boolean", "POST /v1/decrypt/boolean", bind(a.DecryptBoolean)},
		{"decrypt.integer", "POST /v1/decrypt/integer", bind(a.DecryptInteger)},
		{"jobs.submit", "POST /v1/jobs", bind(a.SubmitJob)},
		{"stats", "GET /v1/stats", bind(a.Stats)},
	}
}

// bind decodes a JSON body into Req and calls fn.
func bind[Req, Resp any](fn func(context.Context, Req) (Resp, error)) func(context.Context, []byte) (any, error) {
	return func(ctx context.Context, body []byte) (any, error) {
		var req Req
		if len(bytes.TrimSpace(body)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				return nil, errs.InvalidArgument("decode request: %v", err)
			}
		}
		return fn(ctx, req)
	}
}

// classify maps an error onto an HTTP status and a wire code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, queue.ErrQueueFull):
		return http.StatusServiceUnavailable, CodeUnavailable
	}

	code := errs.CodeOf(err)
	switch code {
	case errs.CodeNotFound:
		return http.StatusNotFound, code.String()
	case errs.CodeInvalidArgument, errs.CodeSerialization:
		return http.StatusBadRequest, code.String()
	case errs.CodeTypeMismatch, errs.CodeUnsupportedOperation:
		return http.StatusUnprocessableEntity, code.String()
	default:
		return http.StatusInternalServerError, code.String()
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	status, code := classify(err)
	return status, ErrorResponse{Error: err.Error(), Code: code}
}
