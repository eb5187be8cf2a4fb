package filters

import "io"

// countingReader wraps r, tallying bytes actually read so a Skipper can
// report how far into the stream the EOD marker was found.
type countingReader struct {
	r         io.Reader
	totalRead int
}

func newCountingReader(r io.Reader) *countingReader { return &countingReader{r: r} }

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.totalRead += n
	return n, err
}

// ReadByte makes countingReader an io.ByteReader, so decompressors such as
// compress/zlib read from it directly instead of through a read-ahead
// buffer, and totalRead stops at the end of the compressed data.
func (c *countingReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// markerReader reads from a countingReader one byte at a time until marker
// has been seen in full, then reports io.EOF. It is deliberately slow (byte
// at a time) since correctness, not throughput, matters for Skip.
type markerReader struct {
	src    *countingReader
	marker []byte
	match  int
	done   bool
}

func newMarkerReader(src *countingReader, marker []byte) *markerReader {
	return &markerReader{src: src, marker: marker}
}

func (m *markerReader) Read(p []byte) (int, error) {
	if m.done {
		return 0, io.EOF
	}
	n := 0
	buf := make([]byte, 1)
	for n < len(p) {
		if _, err := io.ReadFull(m.src, buf); err != nil {
			return n, err
		}
		p[n] = buf[0]
		n++
		if buf[0] == m.marker[m.match] {
			m.match++
			if m.match == len(m.marker) {
				m.done = true
				return n, nil
			}
		} else if buf[0] == m.marker[0] {
			m.match = 1
		} else {
			m.match = 0
		}
	}
	return n, nil
}
