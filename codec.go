package bitmapstore

import (
	"image"
	"image/png"
	"io"
)

// Codec converts between in-memory images and the canonical on-disk
// encoding. Storage itself only persists bytes; the codec decides the file
// extension and is used by StoreImage and LoadImage.
type Codec interface {
	Encode(w io.Writer, img image.Image) error
	Decode(r io.Reader) (image.Image, error)

	// Ext is the file extension without the leading dot.
	Ext() string

	// ContentType is the MIME type payloads are expected to sniff as.
	ContentType() string
}

// PNGCodec stores every image as PNG. It is the default codec.
type PNGCodec struct {
	CompressionLevel png.CompressionLevel
}

func (c PNGCodec) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: c.CompressionLevel}
	return enc.Encode(w, img)
}

func (PNGCodec) Decode(r io.Reader) (image.Image, error) {
	return png.Decode(r)
}

func (PNGCodec) Ext() string { return "png" }

func (PNGCodec) ContentType() string { return "image/png" }
