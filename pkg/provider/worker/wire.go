package worker

// Wire types for the inference worker API. All bodies are msgpack encoded.

// ModelKind names one of the three networks hosted by the worker.
type ModelKind string

const (
	KindEncoder     ModelKind = "encoder"
	KindSynthesizer ModelKind = "synthesizer"
	KindVocoder     ModelKind = "vocoder"
)

// Device describes one accelerator visible to the worker.
type Device struct {
	Index       int    `msgpack:"index"`
	Name        string `msgpack:"name"`
	TotalMemory uint64 `msgpack:"total_memory"`
}

// DeviceList is the response of GET /v1/devices.
type DeviceList struct {
	// Current is the index of the device the worker runs inference on.
	Current int      `msgpack:"current"`
	Devices []Device `msgpack:"devices"`
}

type healthResponse struct {
	Status string `msgpack:"status"`
}

type errorResponse struct {
	Error string `msgpack:"error"`
}

type loadRequest struct {
	Kind ModelKind `msgpack:"kind"`
	Path string    `msgpack:"path"`
}

type loadResponse struct {
	Handle       string `msgpack:"handle"`
	ModelID      string `msgpack:"model_id"`
	SampleRate   int    `msgpack:"sample_rate"`
	EmbeddingDim int    `msgpack:"embedding_dim"`
}

type embedRequest struct {
	Handle     string    `msgpack:"handle"`
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
}

type embedResponse struct {
	Embedding []float32 `msgpack:"embedding"`
}

type mel struct {
	Frames int       `msgpack:"frames"`
	Bins   int       `msgpack:"bins"`
	Data   []float32 `msgpack:"data"`
}

type synthesizeRequest struct {
	Handle     string      `msgpack:"handle"`
	Texts      []string    `msgpack:"texts"`
	Embeddings [][]float32 `msgpack:"embeddings"`
}

type synthesizeResponse struct {
	SampleRate   int   `msgpack:"sample_rate"`
	Spectrograms []mel `msgpack:"spectrograms"`
}

type vocodeRequest struct {
	Handle string `msgpack:"handle"`
	Mel    mel    `msgpack:"mel"`
}

type vocodeResponse struct {
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
}
