package transport

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// shouldCompress implements spec.md §4.H "Request compression": bodies are
// zstd-compressed only when the feature flag is on, auth mode is ChatGPT,
// and the provider is OpenAI-canonical; otherwise requests go uncompressed.
func shouldCompress(features Features, auth Auth, provider ProviderInfo) bool {
	return features.EnableCompression && auth.Mode == AuthModeChatGPT && provider.IsCanonicalOpenAI
}

// compressBody zstd-compresses body using klauspost/compress/zstd, the
// pure-Go zstd implementation already present in the corpus (see
// SPEC_FULL.md §4.H).
func compressBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
