package object

// Blob is an opaque byte payload; Git attaches no structure to it.
type Blob struct {
	data []byte
}

// NewBlob wraps raw bytes as a Blob. The bytes are used as-is for content.
func NewBlob(data []byte) *Blob {
	return &Blob{data: data}
}

func (b *Blob) Kind() Kind        { return KindBlob }
func (b *Blob) Content() []byte   { return b.data }
func (b *Blob) Bytes() []byte     { return b.data }
func (b *Blob) Size() int         { return len(b.data) }
