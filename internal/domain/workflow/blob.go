package workflow

import (
	"bytes"
	"compress/zlib"
	"encoding/gob"
	"encoding/json"
	"io"
)

// DefaultCompressionLevel matches spec.md section 6: zlib level 6 for
// every compressed blob column (inputs, outputs, snapshot).
const DefaultCompressionLevel = 6

// EncodeBlob gob-encodes an arbitrary value, then zlib-compresses it.
// This is the Go-native replacement for the source's
// pickle.dumps + zlib.compress pipeline (CompressedIOField /
// CompressedBinaryField in original_source/modbpm/models.py).
func EncodeBlob(v any) ([]byte, error) {
	var gobBuf bytes.Buffer
	if v != nil {
		if err := gob.NewEncoder(&gobBuf).Encode(v); err != nil {
			return nil, Wrap(CodeInternal, "workflow.EncodeBlob", err)
		}
	}

	var out bytes.Buffer
	w, err := zlib.NewWriterLevel(&out, DefaultCompressionLevel)
	if err != nil {
		return nil, Wrap(CodeInternal, "workflow.EncodeBlob", err)
	}
	if _, err := w.Write(gobBuf.Bytes()); err != nil {
		_ = w.Close()
		return nil, Wrap(CodeInternal, "workflow.EncodeBlob", err)
	}
	if err := w.Close(); err != nil {
		return nil, Wrap(CodeInternal, "workflow.EncodeBlob", err)
	}
	return out.Bytes(), nil
}

// DecodeBlob reverses EncodeBlob into dst (a pointer to the destination
// value, e.g. *map[string]any or *any).
func DecodeBlob(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return Wrap(CodeInternal, "workflow.DecodeBlob", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Wrap(CodeInternal, "workflow.DecodeBlob", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(dst); err != nil {
		return Wrap(CodeInternal, "workflow.DecodeBlob", err)
	}
	return nil
}

// EncodeJSONBlob zlib-compresses the JSON encoding of v. Activity
// inputs/outputs (args, kwargs, data, ex_data) are dynamically-shaped
// user payloads, not a single concrete Go type the decode site knows in
// advance, so they use JSON rather than EncodeBlob's gob: gob can only
// decode into a statically-typed destination (fine for a runtime
// snapshot, not for an arbitrary user "data" value landing in `any`).
func EncodeJSONBlob(v any) ([]byte, error) {
	var jsonBuf []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, Wrap(CodeInternal, "workflow.EncodeJSONBlob", err)
		}
		jsonBuf = b
	}

	var out bytes.Buffer
	w, err := zlib.NewWriterLevel(&out, DefaultCompressionLevel)
	if err != nil {
		return nil, Wrap(CodeInternal, "workflow.EncodeJSONBlob", err)
	}
	if _, err := w.Write(jsonBuf); err != nil {
		_ = w.Close()
		return nil, Wrap(CodeInternal, "workflow.EncodeJSONBlob", err)
	}
	if err := w.Close(); err != nil {
		return nil, Wrap(CodeInternal, "workflow.EncodeJSONBlob", err)
	}
	return out.Bytes(), nil
}

// DecodeJSONBlobInto reverses EncodeJSONBlob into dst (a pointer), for
// callers that know the concrete shape of the payload (e.g. a process's
// child-spec snapshot).
func DecodeJSONBlobInto(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return Wrap(CodeInternal, "workflow.DecodeJSONBlobInto", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Wrap(CodeInternal, "workflow.DecodeJSONBlobInto", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Wrap(CodeInternal, "workflow.DecodeJSONBlobInto", err)
	}
	return nil
}

// DecodeJSONBlob reverses EncodeJSONBlob into an `any` (typically a
// map[string]any for object payloads) when the caller has no fixed
// destination type, e.g. a user-defined activity's data/ex_data.
func DecodeJSONBlob(raw []byte) (any, error) {
	var v any
	if err := DecodeJSONBlobInto(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
