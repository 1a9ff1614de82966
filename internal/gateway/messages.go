package gateway

import (
	"github.com/Hermetic-Labs/hermetic-fhe/internal/engine"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/worker"
)

// Request and response documents shared by the HTTP and NATS transports.
// Byte fields travel as base64 strings.

type GenerateKeysRequest struct {
	// ParameterSet is DEFAULT, FAST or SECURE. Empty means DEFAULT.
	ParameterSet string `json:"parameter_set"`
}

type GenerateKeysResponse struct {
	ClientKeyID string `json:"client_key_id"`
	ServerKeyID string `json:"server_key_id"`
}

type EncryptBooleanRequest struct {
	ClientKeyID       string `json:"client_key_id"`
	Value             bool   `json:"value"`
	IncludeSerialized bool   `json:"include_serialized,omitempty"`
}

type EncryptIntegerRequest struct {
	ClientKeyID       string `json:"client_key_id"`
	Value             int64  `json:"value"`
	NumBits           uint32 `json:"num_bits"`
	IncludeSerialized bool   `json:"include_serialized,omitempty"`
}

type EncryptResponse struct {
	EncryptedDataID string `json:"encrypted_data_id"`
	SerializedData  []byte `json:"serialized_data,omitempty"`
}

type EvaluateRequest struct {
	ServerKeyID       string   `json:"server_key_id"`
	Operation         string   `json:"operation"`
	OperandIDs        []string `json:"operand_ids"`
	IncludeSerialized bool     `json:"include_serialized,omitempty"`
}

type EvaluateResponse struct {
	ResultID         string `json:"result_id"`
	SerializedResult []byte `json:"serialized_result,omitempty"`
}

// DecryptRequest names the ciphertext either by EncryptedDataID or by
// SerializedData.
type DecryptRequest struct {
	ClientKeyID     string `json:"client_key_id"`
	EncryptedDataID string `json:"encrypted_data_id,omitempty"`
	SerializedData  []byte `json:"serialized_data,omitempty"`
}

type DecryptBooleanResponse struct {
	Value bool `json:"value"`
}

type DecryptIntegerResponse struct {
	Value int64 `json:"value"`
}

type ExportResponse struct {
	EncryptedDataID string `json:"encrypted_data_id"`
	SerializedData  []byte `json:"serialized_data"`
}

type SubmitJobRequest struct {
	ServerKeyID string   `json:"server_key_id"`
	Operation   string   `json:"operation"`
	OperandIDs  []string `json:"operand_ids"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse = queue.Job

type ComputeStats struct {
	Slots int `json:"slots"`
	Busy  int `json:"busy"`
}

type StatsResponse struct {
	engine.Stats
	Jobs    *worker.OperationStats `json:"jobs,omitempty"`
	Compute *ComputeStats          `json:"compute,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
