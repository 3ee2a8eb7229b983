// Package dogapi serves the dog GraphQL API the demo queries: a list of
// breeds and a photo per breed.
package dogapi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	graphql "github.com/graph-gophers/graphql-go"
)

const Schema = `
schema {
	query: Query
}

type Query {
	dogs: [Dog!]!
	dog(breed: String!): Dog
}

type Dog {
	id: ID!
	breed: String!
	displayImage: String
}
`

var DefaultBreeds = []string{"affenpinscher", "akita", "beagle", "bulldog", "husky", "poodle"}

// Resolver is the root resolver. Each photo lookup hands out the next image
// for that breed, so a network round-trip is observable from the result.
type Resolver struct {
	breeds []string

	mu    sync.Mutex
	shots map[string]int

	dogsCalls atomic.Int64
	dogCalls  atomic.Int64
}

func NewResolver(breeds ...string) *Resolver {
	if len(breeds) == 0 {
		breeds = DefaultBreeds
	}
	return &Resolver{
		breeds: append([]string(nil), breeds...),
		shots:  make(map[string]int, len(breeds)),
	}
}

func (r *Resolver) Dogs(_ context.Context) []*dogResolver {
	r.dogsCalls.Add(1)
	out := make([]*dogResolver, 0, len(r.breeds))
	for i, b := range r.breeds {
		out = append(out, &dogResolver{id: dogID(i), breed: b})
	}
	return out
}

func (r *Resolver) Dog(_ context.Context, args struct{ Breed string }) (*dogResolver, error) {
	r.dogCalls.Add(1)
	breed := strings.ToLower(strings.TrimSpace(args.Breed))
	for i, b := range r.breeds {
		if b != breed {
			continue
		}
		r.mu.Lock()
		r.shots[b]++
		n := r.shots[b]
		r.mu.Unlock()
		img := ImageURL(b, n)
		return &dogResolver{id: dogID(i), breed: b, image: &img}, nil
	}
	return nil, fmt.Errorf("no dog with breed %q", args.Breed)
}

// Calls reports how many times the list and photo fields were resolved.
func (r *Resolver) Calls() (dogs, dog int64) {
	return r.dogsCalls.Load(), r.dogCalls.Load()
}

func ImageURL(breed string, n int) string {
	return fmt.Sprintf("https://images.dog.ceo/breeds/%s/%s_%d.jpg", breed, breed, n)
}

func dogID(i int) graphql.ID { return graphql.ID(fmt.Sprintf("dog-%d", i+1)) }

type dogResolver struct {
	id    graphql.ID
	breed string
	image *string
}

func (d *dogResolver) ID() graphql.ID        { return d.id }
func (d *dogResolver) Breed() string         { return d.breed }
func (d *dogResolver) DisplayImage() *string { return d.image }
