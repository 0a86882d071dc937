package pciconf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	slotLine = regexp.MustCompile(`^(?:[0-9a-fA-F]{4}:)?([0-9a-fA-F]{2}):([0-9a-fA-F]{2})\.([0-7])\b`)
	hexLine  = regexp.MustCompile(`^([0-9a-fA-F]{2,3}):((?:\s+[0-9a-fA-F]{2})+)\s*$`)
)

// Image is an in-memory configuration space. Functions that were never
// added read back as all ones, like an empty slot on real hardware.
type Image struct {
	mu        sync.RWMutex
	functions map[Coordinate]*[ConfigSpaceSize]byte
}

// NewImage returns an empty configuration space image
func NewImage() *Image {
	return &Image{functions: make(map[Coordinate]*[ConfigSpaceSize]byte)}
}

// ParseLspci builds an Image from `lspci -xxx` (or -xxxx) output. Bytes past
// offset 0xFF are ignored since mechanism #1 cannot reach them.
func ParseLspci(r io.Reader) (*Image, error) {
	img := NewImage()

	var (
		current *[ConfigSpaceSize]byte
		lineNo  int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" {
			continue
		}

		if m := slotLine.FindStringSubmatch(line); m != nil {
			bus, _ := strconv.ParseUint(m[1], 16, 8)
			dev, _ := strconv.ParseUint(m[2], 16, 8)
			fn, _ := strconv.ParseUint(m[3], 16, 8)
			c := BDF(uint8(bus), uint8(dev), uint8(fn))
			if c.Device > 31 {
				return nil, fmt.Errorf("line %d: %w: device %d", lineNo, ErrInvalidCoordinate, c.Device)
			}
			current = img.function(c)
			continue
		}

		m := hexLine.FindStringSubmatch(line)
		if m == nil {
			// Device description continuation (lspci -v) or other noise
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: hex data before any device header", lineNo)
		}
		base, err := strconv.ParseUint(m[1], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad offset %q: %w", lineNo, m[1], err)
		}
		for i, field := range strings.Fields(m[2]) {
			off := int(base) + i
			if off >= ConfigSpaceSize {
				break
			}
			b, err := strconv.ParseUint(field, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad byte %q: %w", lineNo, field, err)
			}
			current[off] = byte(b)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lspci dump: %w", err)
	}
	if len(img.functions) == 0 {
		return nil, fmt.Errorf("no devices found in lspci dump")
	}
	return img, nil
}

func (img *Image) function(c Coordinate) *[ConfigSpaceSize]byte {
	key := c.At(0)
	f, ok := img.functions[key]
	if !ok {
		f = new([ConfigSpaceSize]byte)
		img.functions[key] = f
	}
	return f
}

// Set stores a raw register value, creating the function if needed. Bits
// above w are dropped.
func (img *Image) Set(c Coordinate, w Width, value uint32) error {
	if err := c.Validate(w); err != nil {
		return err
	}

	img.mu.Lock()
	defer img.mu.Unlock()

	f := img.function(c)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	copy(f[int(c.Offset):int(c.Offset)+w.Bytes()], buf[:w.Bytes()])
	return nil
}

// Functions lists every populated function in bus/device/function order
func (img *Image) Functions() []Coordinate {
	img.mu.RLock()
	defer img.mu.RUnlock()

	out := make([]Coordinate, 0, len(img.functions))
	for c := range img.functions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address() < out[j].Address()
	})
	return out
}

func (img *Image) Read(c Coordinate, w Width) (uint32, error) {
	if err := c.Validate(w); err != nil {
		return 0, err
	}

	img.mu.RLock()
	defer img.mu.RUnlock()

	f, ok := img.functions[c.At(0)]
	if !ok {
		return w.Mask(), nil
	}
	var buf [4]byte
	copy(buf[:w.Bytes()], f[int(c.Offset):int(c.Offset)+w.Bytes()])
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (img *Image) Write(c Coordinate, w Width, value uint32) error {
	if err := c.Validate(w); err != nil {
		return err
	}
	if value&^w.Mask() != 0 {
		return fmt.Errorf("%w: value %#x wider than %d bits", ErrInvalidCoordinate, value, w)
	}
	return img.Set(c, w, value)
}
