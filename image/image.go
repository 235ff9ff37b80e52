// Package image stores assembled programs as content-addressed images.
// An image carries the instruction sequence plus optional source text and
// is encoded with canonical CBOR, so identical programs always produce
// identical bytes and the same hash.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/vainilla/vm"
)

// Version is the current image format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

// Extension is the conventional file extension for images.
const Extension = ".vmi"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Hash is the SHA-256 of an image's canonical instruction encoding.
type Hash [32]byte

// String returns the hash in lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex digits, enough to name an image.
func (h Hash) Short() string {
	return h.String()[:12]
}

// ParseHash decodes a full hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("image: invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("image: invalid hash %q: want %d bytes, got %d", s, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// WireInstruction is the encoded form of a vm.Instruction.
type WireInstruction struct {
	Op     uint8   `cbor:"1,keyasint"`
	Int    int64   `cbor:"2,keyasint,omitempty"`
	Float  float64 `cbor:"3,keyasint,omitempty"`
	Name   string  `cbor:"4,keyasint,omitempty"`
	Target int     `cbor:"5,keyasint,omitempty"`
}

// Image is an assembled program ready to be stored or shipped.
type Image struct {
	Version uint16            `cbor:"1,keyasint"`
	Name    string            `cbor:"2,keyasint,omitempty"`
	Source  string            `cbor:"3,keyasint,omitempty"` // assembly text the image was built from
	Code    []WireInstruction `cbor:"4,keyasint"`
	Hash    Hash              `cbor:"5,keyasint"`
}

// New builds an image for prog. Source may be empty.
func New(name, source string, prog []vm.Instruction) (*Image, error) {
	if err := vm.Validate(prog); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	img := &Image{
		Version: Version,
		Name:    name,
		Source:  source,
		Code:    make([]WireInstruction, len(prog)),
	}
	for i, in := range prog {
		img.Code[i] = WireInstruction{
			Op:     uint8(in.Op),
			Int:    in.Int,
			Float:  in.Float,
			Name:   in.Name,
			Target: in.Target,
		}
	}
	h, err := img.computeHash()
	if err != nil {
		return nil, err
	}
	img.Hash = h
	return img, nil
}

// Instructions decodes the image's program.
func (img *Image) Instructions() ([]vm.Instruction, error) {
	prog := make([]vm.Instruction, len(img.Code))
	for i, c := range img.Code {
		prog[i] = vm.Instruction{
			Op:     vm.Opcode(c.Op),
			Int:    c.Int,
			Float:  c.Float,
			Name:   c.Name,
			Target: c.Target,
		}
	}
	if err := vm.Validate(prog); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return prog, nil
}

// Len returns the number of instructions.
func (img *Image) Len() int {
	return len(img.Code)
}

// computeHash hashes only the code, so renaming an image or dropping its
// source does not change its identity.
func (img *Image) computeHash() (Hash, error) {
	data, err := cborEncMode.Marshal(img.Code)
	if err != nil {
		return Hash{}, fmt.Errorf("image: encode code: %w", err)
	}
	return sha256.Sum256(data), nil
}

// Verify recomputes the hash and checks it against the declared one.
func (img *Image) Verify() error {
	computed, err := img.computeHash()
	if err != nil {
		return err
	}
	if computed != img.Hash {
		return fmt.Errorf("image: hash mismatch: declared %s, computed %s", img.Hash, computed)
	}
	return nil
}

// Marshal serializes an image to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes and verifies an image.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version == 0 || img.Version > Version {
		return nil, fmt.Errorf("image: version %d is not supported (current %d)", img.Version, Version)
	}
	if err := img.Verify(); err != nil {
		return nil, err
	}
	if _, err := img.Instructions(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Save writes an image file.
func Save(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("image: cannot write %s: %w", path, err)
	}
	return nil
}

// Load reads and verifies an image file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: cannot read %s: %w", path, err)
	}
	return Unmarshal(data)
}
