//go:build property

package module

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/saiset-co/sai-render/cache"
	"github.com/saiset-co/sai-render/logger"
)

func TestTagSetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated registration never grows the member set", prop.ForAll(
		func(distinct, repeats int) bool {
			store, err := cache.NewMemoryStore(logger.NewNop(), nil)
			if err != nil {
				return false
			}
			index := NewContentCache(plainStore{store}, logger.NewNop(), time.Minute).Tags()
			ctx := context.Background()

			for r := 0; r < repeats; r++ {
				for i := 0; i < distinct; i++ {
					if err := index.Register(ctx, fmt.Sprintf("id-%d", i), []string{"tag"}); err != nil {
						return false
					}
				}
			}

			members, err := index.Members(ctx, "tag")
			return err == nil && len(members) == distinct
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 5),
	))

	properties.Property("invalidation removes exactly the tagged identifiers", prop.ForAll(
		func(tagged, untagged int) bool {
			store, err := cache.NewMemoryStore(logger.NewNop(), nil)
			if err != nil {
				return false
			}
			content := NewContentCache(store, logger.NewNop(), time.Minute)
			ctx := context.Background()

			for i := 0; i < tagged; i++ {
				id := fmt.Sprintf("t-%d", i)
				if content.Register(ctx, id, []string{"T"}) != nil {
					return false
				}
				if _, err := content.Put(ctx, id, []byte(id), ""); err != nil {
					return false
				}
			}
			for i := 0; i < untagged; i++ {
				id := fmt.Sprintf("u-%d", i)
				if content.Register(ctx, id, []string{"U"}) != nil {
					return false
				}
				if _, err := content.Put(ctx, id, []byte(id), ""); err != nil {
					return false
				}
			}

			ids, err := content.Invalidate(ctx, []string{"T"})
			if err != nil || len(ids) != tagged {
				return false
			}

			for i := 0; i < untagged; i++ {
				ok, err := content.Check(ctx, "GET", fmt.Sprintf("u-%d", i))
				if err != nil || !ok {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 15),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
