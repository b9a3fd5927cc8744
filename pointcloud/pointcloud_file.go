package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/emvs/spatialmath"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed lzf compressed binary format for pcd, with fields stored one after the other.
	PCDCompressed PCDType = 2
)

// ParsePCDType maps the DATA keyword of a pcd header to its type.
func ParsePCDType(s string) (PCDType, error) {
	switch s {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	case "binary_compressed":
		return PCDCompressed, nil
	default:
		return 0, errors.Errorf("unknown pcd data type %q", s)
	}
}

// WriteToPCDFile writes the cloud to a pcd file at path. viewpoint is the pose of the frame the
// points are expressed in.
func WriteToPCDFile(cloud PointCloud, viewpoint spatialmath.Pose, path string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = ToPCD(cloud, viewpoint, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

// ToPCD writes the cloud as an unorganized pcd with fields x y z intensity.
func ToPCD(cloud PointCloud, viewpoint spatialmath.Pose, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	case PCDCompressed:
		data = "binary_compressed"
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}

	t := viewpoint.Point()
	q := viewpoint.Quaternion()
	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z intensity\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F F\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT %g %g %g %g %g %g %g\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		cloud.Size(), t.X, t.Y, t.Z, q.Real, q.Imag, q.Jmag, q.Kmag, cloud.Size(), data); err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	if pcdtype == PCDCompressed {
		return writePCDCompressed(cloud, out)
	}
	var err error
	buf := make([]byte, 16)
	cloud.Iterate(0, 0, func(pos r3.Vector, intensity float64) bool {
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(float32(intensity)))
			_, err = out.Write(buf)
		default:
			_, err = fmt.Fprintf(out, "%f %f %f %f\n", pos.X, pos.Y, pos.Z, intensity)
		}
		return err == nil
	})
	return err
}

// writePCDCompressed lays the fields out as x...x y...y z...z i...i and writes the compressed and
// uncompressed sizes followed by the lzf block.
func writePCDCompressed(cloud PointCloud, out io.Writer) error {
	n := cloud.Size()
	raw := make([]byte, 16*n)
	i := 0
	cloud.Iterate(0, 0, func(pos r3.Vector, intensity float64) bool {
		for f, v := range [4]float64{pos.X, pos.Y, pos.Z, intensity} {
			binary.LittleEndian.PutUint32(raw[4*(f*n+i):], math.Float32bits(float32(v)))
		}
		i++
		return true
	})

	var compressed []byte
	if n > 0 {
		// lzf may grow incompressible input slightly
		compressed = make([]byte, len(raw)+len(raw)/16+64)
		size, err := lzf.Compress(raw, compressed)
		if err != nil {
			return errors.Wrap(err, "compressing pcd data")
		}
		compressed = compressed[:size]
	}
	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

type pcdHeader struct {
	fields    int
	size      []uint64
	width     uint64
	height    uint64
	viewpoint spatialmath.Pose
	points    uint64
	data      PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch value {
		case "x y z":
			header.fields = 3
		case "x y z intensity":
			header.fields = 4
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil || header.size[i] != 4 {
				return errors.Errorf("unsupported SIZE field %s", token)
			}
		}
	case "TYPE":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in TYPE line")
		}
		for _, token := range tokens {
			if token != "F" {
				return errors.Errorf("unsupported TYPE field %s", token)
			}
		}
	case "COUNT":
		if len(tokens) != header.fields {
			return errors.New("unexpected number of fields in COUNT line")
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
		header.viewpoint = spatialmath.NewPoseFromQuat(
			quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]},
			r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]},
		)
	case "POINTS":
		header.points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		header.data, err = ParsePCDType(value)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadPCDFile reads a pcd file written by WriteToPCDFile.
func ReadPCDFile(path string) (*BasicPointCloud, spatialmath.Pose, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, spatialmath.Pose{}, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadPCD(f)
}

// ReadPCD reads an unorganized ascii, binary or binary_compressed pcd with fields x y z and
// optionally intensity.
func ReadPCD(inRaw io.Reader) (*BasicPointCloud, spatialmath.Pose, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, spatialmath.Pose{}, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, spatialmath.Pose{}, err
		}
		headerLineCount++
	}

	var pc *BasicPointCloud
	var err error
	switch header.data {
	case PCDAscii:
		pc, err = readPCDAscii(in, header)
	case PCDBinary:
		pc, err = readPCDBinary(in, header)
	case PCDCompressed:
		pc, err = readPCDCompressed(in, header)
	}
	if err != nil {
		return nil, spatialmath.Pose{}, err
	}
	return pc, header.viewpoint, nil
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (*BasicPointCloud, error) {
	pc := NewBasicPointCloud(int(header.points))
	point := make([]float64, header.fields)
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != header.fields {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		pushSlice(pc, point)
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (*BasicPointCloud, error) {
	pc := NewBasicPointCloud(int(header.points))
	point := make([]float64, header.fields)
	buf := make([]byte, 4*header.fields)
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		for j := range point {
			point[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:])))
		}
		pushSlice(pc, point)
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (*BasicPointCloud, error) {
	sizes := make([]byte, 8)
	if _, err := io.ReadFull(in, sizes); err != nil {
		return nil, errors.Wrap(err, "reading compressed sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes)
	rawSize := binary.LittleEndian.Uint32(sizes[4:])
	n := int(header.points)
	if int(rawSize) != 4*header.fields*n {
		return nil, errors.Errorf("uncompressed size %d does not hold %d points of %d fields", rawSize, n, header.fields)
	}
	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(in, compressed); err != nil {
		return nil, errors.Wrap(err, "reading compressed data")
	}
	raw := make([]byte, rawSize)
	if rawSize > 0 {
		size, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "decompressing pcd data")
		}
		if size != int(rawSize) {
			return nil, errors.Errorf("decompressed %d bytes, expected %d", size, rawSize)
		}
	}

	pc := NewBasicPointCloud(n)
	point := make([]float64, header.fields)
	for i := 0; i < n; i++ {
		for f := range point {
			point[f] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*(f*n+i):])))
		}
		pushSlice(pc, point)
	}
	return pc, nil
}

func pushSlice(pc *BasicPointCloud, slice []float64) {
	var intensity float64
	if len(slice) > 3 {
		intensity = slice[3]
	}
	pc.Push(r3.Vector{X: slice[0], Y: slice[1], Z: slice[2]}, intensity)
}
