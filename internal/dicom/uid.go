package dicom

import (
	"fmt"
	"math/big"
	randv2 "math/rand/v2"

	"github.com/google/uuid"
)

// studyUIDRoot is the organisation root of generated study UIDs.
const studyUIDRoot = "1.3.6.1.4.1.5962.99.1.3781888186"

// UIDFactory generates study and instance UIDs.
type UIDFactory struct {
	rng *randv2.Rand
}

// NewUIDFactory returns a factory. A zero seed draws from the global source;
// any other seed makes the sequence reproducible.
func NewUIDFactory(seed uint64) *UIDFactory {
	if seed == 0 {
		seed = randv2.Uint64()
	}
	return &UIDFactory{rng: randv2.New(randv2.NewPCG(seed, seed))}
}

// StudyUID returns a new StudyInstanceUID.
func (f *UIDFactory) StudyUID() string {
	return fmt.Sprintf("%s.%d.%d.4.0", studyUIDRoot, f.rng.IntN(1_000_000_000), f.rng.IntN(1_000_000))
}

// NewUID returns a UID of the form 2.25.<uuid as decimal>.
func (f *UIDFactory) NewUID() string {
	u, err := uuid.NewRandomFromReader(rngReader{f.rng})
	if err != nil {
		u = uuid.New()
	}
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}

// rngReader adapts a PRNG to io.Reader.
type rngReader struct {
	rng *randv2.Rand
}

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
