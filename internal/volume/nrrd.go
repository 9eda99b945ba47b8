package volume

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// NRRD type names and their accepted synonyms.
var nrrdTypes = map[string]DataType{
	"uchar":              Uint8,
	"unsigned char":      Uint8,
	"uint8":              Uint8,
	"uint8_t":            Uint8,
	"short":              Int16,
	"short int":          Int16,
	"signed short":       Int16,
	"signed short int":   Int16,
	"int16":              Int16,
	"int16_t":            Int16,
	"ushort":             Uint16,
	"unsigned short":     Uint16,
	"unsigned short int": Uint16,
	"uint16":             Uint16,
	"uint16_t":           Uint16,
	"int":                Int32,
	"signed int":         Int32,
	"int32":              Int32,
	"int32_t":            Int32,
	"float":              Float32,
	"double":             Float64,
}

var nrrdTypeNames = map[DataType]string{
	Uint8:   "unsigned char",
	Int16:   "short",
	Uint16:  "unsigned short",
	Int32:   "int",
	Float32: "float",
	Float64: "double",
}

// WriteNRRD writes v as an attached-header NRRD file in LPS space.
func WriteNRRD(path string, v *Volume, compress bool) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid volume: %w", err)
	}

	var hdr strings.Builder
	hdr.WriteString("NRRD0004\n")
	hdr.WriteString("# Complete NRRD file format specification at:\n")
	hdr.WriteString("# http://teem.sourceforge.net/nrrd/format.html\n")
	fmt.Fprintf(&hdr, "type: %s\n", nrrdTypeNames[v.Type])
	hdr.WriteString("dimension: 3\n")
	hdr.WriteString("space: left-posterior-superior\n")
	fmt.Fprintf(&hdr, "sizes: %d %d %d\n", v.Dims[0], v.Dims[1], v.Dims[2])
	hdr.WriteString("space directions:")
	for i := 0; i < 3; i++ {
		d := v.Direction[i]
		s := v.Spacing[i]
		fmt.Fprintf(&hdr, " (%s,%s,%s)", formatFloat(d[0]*s), formatFloat(d[1]*s), formatFloat(d[2]*s))
	}
	hdr.WriteString("\n")
	hdr.WriteString("kinds: domain domain domain\n")
	hdr.WriteString("endian: little\n")
	if compress {
		hdr.WriteString("encoding: gzip\n")
	} else {
		hdr.WriteString("encoding: raw\n")
	}
	fmt.Fprintf(&hdr, "space origin: (%s,%s,%s)\n\n",
		formatFloat(v.Origin[0]), formatFloat(v.Origin[1]), formatFloat(v.Origin[2]))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create NRRD file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.WriteString(f, hdr.String()); err != nil {
		return fmt.Errorf("write NRRD header: %w", err)
	}
	data := encodeVoxels(v.Data, v.Type, binary.LittleEndian)
	if !compress {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("write NRRD data: %w", err)
		}
		return f.Close()
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress NRRD data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress NRRD data: %w", err)
	}
	return f.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// nrrdHeader holds the header fields read from an NRRD file.
type nrrdHeader struct {
	fields map[string]string
	size   int // header length in bytes, including the blank line
}

func parseNRRDHeader(raw []byte) (*nrrdHeader, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	magic, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read NRRD magic: %w", err)
	}
	if !strings.HasPrefix(magic, "NRRD000") {
		return nil, fmt.Errorf("not an NRRD file")
	}

	h := &nrrdHeader{fields: map[string]string{}, size: len(magic)}
	for {
		line, err := r.ReadString('\n')
		h.size += len(line)
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			// End of header. A header that runs to EOF has no data.
			if err != nil {
				return nil, fmt.Errorf("NRRD header has no data section")
			}
			return h, nil
		}
		if err != nil {
			return nil, fmt.Errorf("NRRD header has no data section")
		}
		if strings.HasPrefix(trimmed, "#") || strings.Contains(trimmed, ":=") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, ": ")
		if !ok {
			return nil, fmt.Errorf("malformed NRRD header line %q", trimmed)
		}
		h.fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
}

func (h *nrrdHeader) ints(key string) ([]int, error) {
	var out []int
	for _, f := range strings.Fields(h.fields[key]) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parse NRRD %s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (h *nrrdHeader) floats(key string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Fields(h.fields[key]) {
		if f == "nan" || f == "NaN" {
			out = append(out, 0)
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse NRRD %s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseVector parses "(a,b,c)".
func parseVector(s string) ([3]float64, error) {
	var v [3]float64
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return v, fmt.Errorf("malformed vector %q", s)
	}
	comps := strings.Split(s[1:len(s)-1], ",")
	if len(comps) != 3 {
		return v, fmt.Errorf("vector %q must have 3 components", s)
	}
	for i, c := range comps {
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return v, fmt.Errorf("malformed vector %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}

// ReadNRRD reads an attached-header NRRD file with raw, gzip or ascii encoding.
func ReadNRRD(path string) (*Volume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read NRRD file: %w", err)
	}
	h, err := parseNRRDHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, ok := h.fields["data file"]; ok {
		return nil, fmt.Errorf("%s: detached NRRD headers are not supported", path)
	}
	if _, ok := h.fields["datafile"]; ok {
		return nil, fmt.Errorf("%s: detached NRRD headers are not supported", path)
	}

	t, ok := nrrdTypes[h.fields["type"]]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported NRRD type %q", path, h.fields["type"])
	}
	dim, err := strconv.Atoi(h.fields["dimension"])
	if err != nil || dim < 2 || dim > 3 {
		return nil, fmt.Errorf("%s: only 2D and 3D NRRD files are supported, got dimension %q", path, h.fields["dimension"])
	}
	sizes, err := h.ints("sizes")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sizes) != dim {
		return nil, fmt.Errorf("%s: sizes has %d entries for dimension %d", path, len(sizes), dim)
	}
	dims := [3]int{1, 1, 1}
	copy(dims[:], sizes)
	if err := checkDims(dims); err != nil {
		return nil, fmt.Errorf("%s: sizes: %w", path, err)
	}
	v := New(dims, t)

	if err := readNRRDGeometry(h, v, dim); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if h.fields["endian"] == "big" {
		order = binary.BigEndian
	}

	body := raw[h.size:]
	switch enc := h.fields["encoding"]; enc {
	case "raw":
	case "gzip", "gz":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: open gzip data: %w", path, err)
		}
		body, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%s: decompress data: %w", path, err)
		}
	case "ascii", "text", "txt":
		v.Data, err = decodeASCII(body, v.Len())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported NRRD encoding %q", path, enc)
	}

	if s, ok := h.fields["byte skip"]; ok {
		skip, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: parse byte skip: %w", path, err)
		}
		switch {
		case skip == -1:
			if n := v.Len() * t.Size(); len(body) >= n {
				body = body[len(body)-n:]
			}
		case skip >= 0 && skip <= len(body):
			body = body[skip:]
		default:
			return nil, fmt.Errorf("%s: invalid byte skip %d", path, skip)
		}
	}

	v.Data, err = decodeVoxels(body, t, v.Len(), order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func readNRRDGeometry(h *nrrdHeader, v *Volume, dim int) error {
	flip := false
	switch strings.ToLower(h.fields["space"]) {
	case "right-anterior-superior", "ras":
		flip = true
	case "", "left-posterior-superior", "lps", "scanner-xyz", "3d-right-handed":
	default:
		return fmt.Errorf("unsupported NRRD space %q", h.fields["space"])
	}

	if dirs, ok := h.fields["space directions"]; ok {
		var vecs []string
		for _, f := range strings.Fields(dirs) {
			if f != "none" {
				vecs = append(vecs, f)
			}
		}
		if len(vecs) != dim {
			return fmt.Errorf("space directions has %d vectors for dimension %d", len(vecs), dim)
		}
		for i, s := range vecs {
			vec, err := parseVector(s)
			if err != nil {
				return fmt.Errorf("parse space directions: %w", err)
			}
			if flip {
				vec[0], vec[1] = -vec[0], -vec[1]
			}
			n := norm(vec)
			if n == 0 {
				return fmt.Errorf("space direction %d is zero", i)
			}
			v.Spacing[i] = n
			for r := 0; r < 3; r++ {
				v.Direction[i][r] = vec[r] / n
			}
		}
		if dim == 2 {
			v.Direction[2] = cross(v.Direction[0], v.Direction[1])
		}
	} else if _, ok := h.fields["spacings"]; ok {
		sp, err := h.floats("spacings")
		if err != nil {
			return err
		}
		for i := 0; i < dim && i < len(sp); i++ {
			if sp[i] > 0 {
				v.Spacing[i] = sp[i]
			}
		}
	}

	if o, ok := h.fields["space origin"]; ok {
		vec, err := parseVector(o)
		if err != nil {
			return fmt.Errorf("parse space origin: %w", err)
		}
		if flip {
			vec[0], vec[1] = -vec[0], -vec[1]
		}
		v.Origin = vec
	}
	return nil
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func decodeASCII(body []byte, n int) ([]float64, error) {
	fields := strings.Fields(string(body))
	if len(fields) < n {
		return nil, fmt.Errorf("ascii data has %d values, need %d", len(fields), n)
	}
	data := make([]float64, n)
	for i := range data {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("parse ascii value %d: %w", i, err)
		}
		data[i] = f
	}
	return data, nil
}
