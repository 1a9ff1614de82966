package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/codec"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/metrics"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/worker"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

var ErrNoBackend = errors.New("engine: backend is required")

// Config wires a Service. Only Backend is required.
type Config struct {
	Backend  fhe.Backend
	Registry *registry.Registry
	// Runner bounds cryptographic work. Defaults to Inline.
	Runner Runner
	// Queue enables asynchronous jobs when set.
	Queue   queue.Queue
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Service is the caller-facing facade over the four components. It adds
// logging, metrics, ciphertext export and asynchronous jobs.
type Service struct {
	Keys       *KeyManager
	Encryptor  *Encryptor
	Dispatcher *Dispatcher
	Decryptor  *Decryptor

	reg     *registry.Registry
	codec   *codec.Codec
	queue   queue.Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
	evals   *worker.StatsTracker
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		Keys:       NewKeyManager(cfg.Registry, cfg.Backend, cfg.Runner),
		Encryptor:  NewEncryptor(cfg.Registry, cfg.Backend, cfg.Runner),
		Dispatcher: NewDispatcher(cfg.Registry, cfg.Backend, cfg.Runner),
		Decryptor:  NewDecryptor(cfg.Registry, cfg.Backend, cfg.Runner),
		reg:        cfg.Registry,
		codec:      codec.New(cfg.Backend),
		queue:      cfg.Queue,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		evals:      worker.NewStatsTracker(),
	}, nil
}

// Registry returns the registry shared by the components.
func (s *Service) Registry() *registry.Registry { return s.reg }

func (s *Service) finish(logger *zap.Logger, method string, start time.Time, err error) {
	d := time.Since(start)
	s.metrics.ObserveCall(method, d, err)

	switch {
	case err == nil:
		logger.Info("request completed", zap.Duration("duration", d))
	case errs.CodeOf(err) == errs.CodeInternalCrypto:
		logger.Error("request failed", zap.Duration("duration", d), zap.Error(err))
	default:
		logger.Warn("request rejected", zap.Error(err))
	}
}

func (s *Service) GenerateKeys(ctx context.Context, ps fhe.ParameterSet) (keys KeyPair, err error) {
	start := time.Now()
	logger := s.logger.With(zap.String("method", "generate_keys"), zap.Stringer("parameter_set", ps))
	logger.Debug("generating keys")
	defer func() { s.finish(logger.With(zap.String("server_key_id", string(keys.ServerKey))), "generate_keys", start, err) }()

	return s.Keys.Generate(ctx, ps)
}

func (s *Service) EncryptBoolean(ctx context.Context, clientKeyID string, value bool) (id string, err error) {
	start := time.Now()
	logger := s.logger.With(zap.String("method", "encrypt_boolean"), zap.String("client_key_id", clientKeyID))
	logger.Debug("encrypting boolean")
	defer func() { s.finish(logger.With(zap.String("encrypted_data_id", id)), "encrypt_boolean", start, err) }()

	h, err := s.Encryptor.EncryptBoolean(ctx, registry.Handle(clientKeyID), value)
	return string(h), err
}

func (s *Service) EncryptInteger(ctx context.Context, clientKeyID string, value int64, numBits uint32) (id string, err error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("method", "encrypt_integer"),
		zap.String("client_key_id", clientKeyID),
		zap.Uint32("num_bits", numBits),
	)
	logger.Debug("encrypting integer")
	defer func() { s.finish(logger.With(zap.String("encrypted_data_id", id)), "encrypt_integer", start, err) }()

	h, err := s.Encryptor.EncryptInteger(ctx, registry.Handle(clientKeyID), value, numBits)
	return string(h), err
}

func (s *Service) Evaluate(ctx context.Context, serverKeyID string, op fhe.OperationType, operandIDs []string) (id string, err error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("method", "evaluate"),
		zap.String("server_key_id", serverKeyID),
		zap.Stringer("operation", op),
		zap.Strings("operand_ids", operandIDs),
	)
	logger.Debug("evaluating")
	defer func() {
		s.evals.Record(op, time.Since(start), err)
		s.metrics.ObserveEvaluation(op.String(), err)
		s.finish(logger.With(zap.String("result_id", id)), "evaluate", start, err)
	}()

	h, err := s.Dispatcher.Evaluate(ctx, registry.Handle(serverKeyID), op, handles(operandIDs))
	return string(h), err
}

func (s *Service) DecryptBoolean(ctx context.Context, clientKeyID string, src Source) (value bool, err error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("method", "decrypt_boolean"),
		zap.String("client_key_id", clientKeyID),
		zap.String("encrypted_data_id", string(src.Handle)),
		zap.Int("inline_bytes", len(src.Inline)),
	)
	logger.Debug("decrypting boolean")
	defer func() { s.finish(logger, "decrypt_boolean", start, err) }()

	return s.Decryptor.DecryptBoolean(ctx, registry.Handle(clientKeyID), src)
}

func (s *Service) DecryptInteger(ctx context.Context, clientKeyID string, src Source) (value int64, err error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("method", "decrypt_integer"),
		zap.String("client_key_id", clientKeyID),
		zap.String("encrypted_data_id", string(src.Handle)),
		zap.Int("inline_bytes", len(src.Inline)),
	)
	logger.Debug("decrypting integer")
	defer func() { s.finish(logger, "decrypt_integer", start, err) }()

	return s.Decryptor.DecryptInteger(ctx, registry.Handle(clientKeyID), src)
}

// Export serializes the stored ciphertext id. Keys cannot be exported.
func (s *Service) Export(ctx context.Context, id string) (data []byte, err error) {
	start := time.Now()
	logger := s.logger.With(zap.String("method", "export"), zap.String("encrypted_data_id", id))
	defer func() { s.finish(logger.With(zap.Int("bytes", len(data))), "export", start, err) }()

	v, err := s.reg.Value(registry.Handle(id))
	if err != nil {
		return nil, err
	}
	err = guard(errs.InternalCrypto, "serialize ciphertext", func() error {
		var err error
		data, err = s.codec.Marshal(v)
		return err
	})
	return data, err
}

// SubmitJob validates an evaluation like Evaluate and queues it for the
// worker pool. The returned ID is polled with Job.
func (s *Service) SubmitJob(ctx context.Context, serverKeyID string, op fhe.OperationType, operandIDs []string) (id string, err error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("method", "submit_job"),
		zap.String("server_key_id", serverKeyID),
		zap.Stringer("operation", op),
	)
	defer func() { s.finish(logger.With(zap.String("job_id", id)), "submit_job", start, err) }()

	if s.queue == nil {
		return "", errs.InvalidArgument("asynchronous jobs are disabled")
	}
	if _, err := s.Dispatcher.prepare(registry.Handle(serverKeyID), op, handles(operandIDs)); err != nil {
		return "", err
	}

	job := &queue.Job{
		ID:          uuid.NewString(),
		ServerKeyID: serverKeyID,
		Operation:   op,
		OperandIDs:  append([]string(nil), operandIDs...),
	}
	if err := s.queue.Push(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return job.ID, nil
}

// Job returns the current state of a submitted job.
func (s *Service) Job(ctx context.Context, id string) (*queue.Job, error) {
	if s.queue == nil {
		return nil, errs.NotFound("job", id)
	}
	job, err := s.queue.Get(ctx, id)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, errs.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// EvaluateJob runs a queued job through the Dispatcher.
func (s *Service) EvaluateJob(ctx context.Context, job *queue.Job) (string, error) {
	return s.Evaluate(ctx, job.ServerKeyID, job.Operation, job.OperandIDs)
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Objects     map[string]int64      `json:"objects"`
	Evaluations worker.OperationStats `json:"evaluations"`
}

func (s *Service) Stats() Stats {
	objects := make(map[string]int64)
	for kind, n := range s.reg.Counts() {
		objects[kind.String()] = n
	}
	return Stats{Objects: objects, Evaluations: s.evals.Snapshot()}
}

func handles(ids []string) []registry.Handle {
	out := make([]registry.Handle, len(ids))
	for i, id := range ids {
		out[i] = registry.Handle(id)
	}
	return out
}
