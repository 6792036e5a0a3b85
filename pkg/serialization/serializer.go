// Package serialization encodes execution snapshots for the persistent
// stores: a codec, optional compression and optional AES-GCM encryption,
// applied in that order.
package serialization

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownCodec       = errors.New("unknown codec")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes")
	ErrShortCiphertext    = errors.New("ciphertext shorter than nonce")
)

// Codec turns values into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Compression names a compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts none, gzip or zstd. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

// CodecByName returns the json or msgpack codec.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return NewJSONCodec(), nil
	case "", "msgpack":
		return NewMsgPackCodec(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// Config selects the pipeline stages. A nil Codec means msgpack; an empty
// EncryptKey disables encryption.
type Config struct {
	Codec       Codec
	Compression Compression
	EncryptKey  []byte
}

// Serializer runs values through the configured stages.
type Serializer struct {
	codec       Codec
	compression Compression
	aead        cipher.AEAD
}

// NewSerializer validates cfg and builds a Serializer.
func NewSerializer(cfg Config) (*Serializer, error) {
	s := &Serializer{codec: cfg.Codec, compression: cfg.Compression}
	if s.codec == nil {
		s.codec = NewMsgPackCodec()
	}
	if s.compression == "" {
		s.compression = CompressionNone
	}
	if _, err := ParseCompression(string(s.compression)); err != nil {
		return nil, err
	}
	if len(cfg.EncryptKey) > 0 {
		if len(cfg.EncryptKey) != 32 {
			return nil, ErrInvalidKey
		}
		block, err := aes.NewCipher(cfg.EncryptKey)
		if err != nil {
			return nil, err
		}
		if s.aead, err = cipher.NewGCM(block); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultSerializer is msgpack with zstd and no encryption.
func DefaultSerializer() *Serializer {
	return &Serializer{codec: NewMsgPackCodec(), compression: CompressionZstd}
}

// Format describes the stages, e.g. "msgpack+zstd".
func (s *Serializer) Format() string {
	f := s.codec.Name()
	if s.compression != CompressionNone {
		f += "+" + string(s.compression)
	}
	if s.aead != nil {
		f += "+aes"
	}
	return f
}

// Serialize encodes, compresses and encrypts v.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.codec.Name(), err)
	}
	if data, err = compress(s.compression, data); err != nil {
		return nil, fmt.Errorf("compress %s: %w", s.compression, err)
	}
	if s.aead != nil {
		nonce := make([]byte, s.aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
		data = s.aead.Seal(nonce, nonce, data, nil)
	}
	return data, nil
}

// Deserialize reverses Serialize into v.
func (s *Serializer) Deserialize(data []byte, v any) error {
	var err error
	if s.aead != nil {
		n := s.aead.NonceSize()
		if len(data) < n {
			return fmt.Errorf("decrypt: %w", ErrShortCiphertext)
		}
		if data, err = s.aead.Open(nil, data[:n], data[n:], nil); err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
	}
	if data, err = decompress(s.compression, data); err != nil {
		return fmt.Errorf("decompress %s: %w", s.compression, err)
	}
	if err := s.codec.Decode(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.codec.Name(), err)
	}
	return nil
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return data, nil
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	}
	return data, nil
}

type jsonCodec struct{}

// NewJSONCodec returns the encoding/json codec.
func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                    { return "json" }

type msgpackCodec struct{}

// NewMsgPackCodec returns the MessagePack codec. Struct fields use their
// msgpack tags.
func NewMsgPackCodec() Codec { return msgpackCodec{} }

func (msgpackCodec) Encode(v any) ([]byte, error)    { return msgpack.Marshal(v) }
func (msgpackCodec) Decode(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                    { return "msgpack" }
