package enroll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/michrafnabil/facegate/internal/model"
	"github.com/michrafnabil/facegate/internal/store"
)

// ErrNoEmbeddings is returned when a person contributes no usable embeddings.
var ErrNoEmbeddings = errors.New("no valid embeddings")

// BuildPrototype averages the embeddings and L2-normalizes the mean so the
// prototype lives on the unit sphere with the embeddings it represents.
func BuildPrototype(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}

	dim := len(embeddings[0])
	mean := make([]float64, dim)
	for _, emb := range embeddings {
		if len(emb) != dim {
			return nil, fmt.Errorf("inconsistent embedding dimensions: %d != %d", len(emb), dim)
		}
		for i, v := range emb {
			mean[i] += float64(v)
		}
	}

	var norm float64
	for i := range mean {
		mean[i] /= float64(len(embeddings))
		norm += mean[i] * mean[i]
	}
	norm = math.Sqrt(norm) + 1e-12

	proto := make([]float32, dim)
	for i, v := range mean {
		proto[i] = float32(v / norm)
	}
	return proto, nil
}

// SubsampleReferences keeps roughly ten reference embeddings per person by
// taking every (len/10)-th entry, with a minimum stride of one.
func SubsampleReferences(embeddings [][]float32) [][]float32 {
	if len(embeddings) == 0 {
		return nil
	}

	stride := len(embeddings) / 10
	if stride < 1 {
		stride = 1
	}

	var refs [][]float32
	for i := 0; i < len(embeddings); i += stride {
		refs = append(refs, embeddings[i])
	}
	return refs
}

// Builder turns preprocessed face crops into a whitelist of prototypes.
type Builder struct {
	embedder     *model.EmbedderClient
	maxPerPerson int
}

// NewBuilder creates a whitelist builder.
func NewBuilder(embedder *model.EmbedderClient, maxPerPerson int) *Builder {
	return &Builder{embedder: embedder, maxPerPerson: maxPerPerson}
}

// PersonResult reports the outcome of embedding one person's crops.
type PersonResult struct {
	Name       string
	Images     int
	Embeddings int
	References int
}

// BuildPerson embeds up to maxPerPerson crops from the person's directory
// and derives the prototype and reference set. Unreadable or failing
// images are skipped; ErrNoEmbeddings is returned when nothing usable
// remains.
func (b *Builder) BuildPerson(ctx context.Context, name, dir string) ([]float32, [][]float32, PersonResult, error) {
	res := PersonResult{Name: name}

	images, err := ListImages(dir)
	if err != nil {
		return nil, nil, res, err
	}
	if b.maxPerPerson > 0 && len(images) > b.maxPerPerson {
		images = images[:b.maxPerPerson]
	}
	res.Images = len(images)

	var embeddings [][]float32
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  skipping %s: %v\n", path, err)
			continue
		}

		emb, err := b.embedder.ComputeEmbedding(ctx, data)
		if err != nil {
			fmt.Printf("  skipping %s: %v\n", path, err)
			continue
		}
		embeddings = append(embeddings, emb.Embedding)
	}
	res.Embeddings = len(embeddings)

	proto, err := BuildPrototype(embeddings)
	if err != nil {
		return nil, nil, res, fmt.Errorf("%s: %w", name, err)
	}

	refs := SubsampleReferences(embeddings)
	res.References = len(refs)
	return proto, refs, res, nil
}

// BuildWhitelist embeds every person directory under whitelistDir and
// assembles the whitelist. Persons without usable embeddings are skipped
// with a notice rather than failing the whole build.
func (b *Builder) BuildWhitelist(ctx context.Context, whitelistDir string) (*store.Whitelist, []PersonResult, error) {
	persons, err := ListPersons(whitelistDir)
	if err != nil {
		return nil, nil, err
	}
	if len(persons) == 0 {
		return nil, nil, fmt.Errorf("no person directories in %s", whitelistDir)
	}

	wl := &store.Whitelist{
		Prototypes: make(map[string][]float32),
		References: make(map[string][][]float32),
	}
	var results []PersonResult

	for _, person := range persons {
		name := NormalizePersonName(person)
		proto, refs, res, err := b.BuildPerson(ctx, name, filepath.Join(whitelistDir, person))
		if err != nil {
			if errors.Is(err, ErrNoEmbeddings) {
				fmt.Printf("Skipping %s: no valid embeddings\n", person)
				results = append(results, res)
				continue
			}
			return nil, nil, err
		}

		wl.Prototypes[name] = proto
		wl.References[name] = refs
		results = append(results, res)
	}

	if len(wl.Prototypes) == 0 {
		return nil, nil, errors.New("whitelist build produced no prototypes")
	}
	return wl, results, nil
}
