package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"io/ioutil"
)

type skipperFlate struct{}

func (skipperFlate) Skip(r io.Reader) (int, error) {
	cr := newCountingReader(r)
	zr, err := zlib.NewReader(cr)
	if err != nil {
		return 0, err
	}
	if _, err := ioutil.ReadAll(zr); err != nil {
		return 0, err
	}
	return cr.totalRead, zr.Close()
}

func decodeFlate(p Params, src []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("FlateDecode: %w", err)
	}
	defer zr.Close()
	raw, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("FlateDecode: %w", err)
	}
	return applyPredictor(p, raw)
}

// applyPredictor reverses the PNG or TIFF predictor a Flate/LZW encoder
// applied before compression (ISO 32000-1 Table 8, /Predictor 2 and 10-15).
func applyPredictor(p Params, data []byte) ([]byte, error) {
	predictor := p.Predictor
	if predictor == 0 {
		predictor = 1
	}
	if predictor == 1 {
		return data, nil
	}

	colors := p.Colors
	if colors == 0 {
		colors = 1
	}
	bpc := p.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	columns := p.Columns
	if columns == 0 {
		columns = 1
	}

	switch predictor {
	case 2, 10, 11, 12, 13, 14, 15:
	default:
		return nil, fmt.Errorf("unsupported Predictor: %d", predictor)
	}

	rowSize := bpc * colors * columns / 8
	bytesPerPixel := (bpc*colors + 7) / 8

	isPNG := predictor != 2
	readWidth := rowSize
	if isPNG {
		readWidth++ // the PNG row-filter tag byte
	}

	r := bytes.NewReader(data)
	cr := make([]byte, readWidth)
	pr := make([]byte, readWidth)

	var out []byte
	for {
		if _, err := io.ReadFull(r, cr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		row, err := unpredictRow(pr, cr, predictor, colors, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, row...)
		pr, cr = cr, pr
	}

	if rowSize > 0 && len(out)%rowSize != 0 {
		return nil, fmt.Errorf("predictor postprocessing failed: %d bytes, row size %d", len(out), rowSize)
	}
	return out, nil
}

func unpredictRow(pr, cr []byte, predictor, colors, bytesPerPixel int) ([]byte, error) {
	if predictor == 2 {
		return unpredictTIFFRow(cr, colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	tag := cr[0]

	switch tag {
	case 0:
		// no-op
	case 1: // Sub
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2: // Up
		for i, p := range pdat {
			cdat[i] += p
		}
	case 3: // Average
		for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += byte((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4: // Paeth
		paethUnfilter(cdat, pdat, bytesPerPixel)
	default:
		return nil, fmt.Errorf("unsupported PNG predictor tag: %d", tag)
	}
	return cdat, nil
}

func unpredictTIFFRow(row []byte, colors int) []byte {
	// 8-bits-per-component assumption, matching common producers.
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func paethUnfilter(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			pa = absInt32(b - c)
			pb = absInt32(a - c)
			pc = absInt32(b - c + a - c)
			var pred int32
			switch {
			case pa <= pb && pa <= pc:
				pred = a
			case pb <= pc:
				pred = b
			default:
				pred = c
			}
			a = (pred + int32(cdat[j])) & 0xff
			cdat[j] = byte(a)
			c = b
		}
	}
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
