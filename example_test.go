package resgo_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hupe1980/resgo"
	"github.com/hupe1980/resgo/resource"
	"github.com/hupe1980/resgo/table"
)

// texture is a cacheable asset whose pixels are produced on load.
type texture struct {
	resource.Base
	size   int
	pixels []byte
}

func newTexture(size int) func() (*texture, error) {
	return func() (*texture, error) {
		return &texture{Base: resource.NewBase(resource.KindTexture), size: size}, nil
	}
}

func (t *texture) Load() error {
	t.pixels = bytes.Repeat([]byte{0xff}, t.size)
	return nil
}

func (t *texture) Unload() error {
	t.pixels = nil
	return nil
}

func (t *texture) Reload() error { return t.Load() }

func (t *texture) UsedMemory() int64 { return int64(len(t.pixels)) }

func (t *texture) Cache(w io.Writer) error {
	_, err := w.Write(t.pixels)
	return err
}

func (t *texture) Restore(r io.Reader) error {
	var err error
	t.pixels, err = io.ReadAll(r)
	return err
}

// Example demonstrates creating, loading and deleting a resource.
func Example() {
	dir, _ := os.MkdirTemp("", "resgo-example")
	defer os.RemoveAll(dir)

	e, err := resgo.New(resgo.Config{CacheDir: dir, DebugNames: true})
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	id, tex, err := resgo.Create(e, resgo.PublicOwner, newTexture(64))
	if err != nil {
		log.Fatal(err)
	}
	if err := e.Load(resgo.PublicOwner, id); err != nil {
		log.Fatal(err)
	}

	fmt.Println(tex.Name(), tex.Status(), tex.UsedMemory())
	fmt.Println(e.Delete(resgo.PublicOwner, id))
	// Output:
	// texture#1 defined|loaded 64
	// true
}

// Example_memoryBudget demonstrates eviction to the disk cache when the
// memory budget is exhausted.
func Example_memoryBudget() {
	dir, _ := os.MkdirTemp("", "resgo-example")
	defer os.RemoveAll(dir)

	e, err := resgo.New(resgo.Config{CacheDir: dir, MemoryLimitBytes: 1024, Compression: "lz4"})
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	a, first, _ := resgo.Create(e, resgo.PublicOwner, newTexture(768))
	b, _, _ := resgo.Create(e, resgo.PublicOwner, newTexture(768))

	_ = e.Load(resgo.PublicOwner, a)
	_ = e.Load(resgo.PublicOwner, b) // evicts a

	fmt.Println(first.Status())
	fmt.Println(e.Stats().MemoryUsage, e.Stats().Cache.Records)

	_ = e.Load(resgo.PublicOwner, a) // restores a, evicts b
	fmt.Println(first.Status(), len(first.pixels))
	// Output:
	// defined|cached
	// 768 1
	// defined|loaded 768
}

// Example_strictScope demonstrates strict deletion in a private scope.
func Example_strictScope() {
	dir, _ := os.MkdirTemp("", "resgo-example")
	defer os.RemoveAll(dir)

	e, err := resgo.New(resgo.Config{CacheDir: dir})
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	ui, _ := e.Register("ui", table.Strict)
	id, _, _ := resgo.Create(e, "ui", newTexture(16))

	ref, _ := ui.Share(id)
	fmt.Println(e.Delete("ui", id))
	ref.Release()
	fmt.Println(e.Delete("ui", id))

	_, _, err = resgo.Create(e, "hud", newTexture(16))
	fmt.Println(errors.Is(err, resgo.ErrOwnerNotFound))
	// Output:
	// false
	// true
	// true
}

// Example_evict demonstrates explicit eviction and restore.
func Example_evict() {
	dir, _ := os.MkdirTemp("", "resgo-example")
	defer os.RemoveAll(dir)

	e, err := resgo.New(resgo.Config{CacheDir: dir})
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	ctx := context.Background()
	id, tex, _ := resgo.Create(e, resgo.PublicOwner, newTexture(32))
	_ = e.Load(resgo.PublicOwner, id)

	if err := e.Evict(ctx, resgo.PublicOwner, id); err != nil {
		log.Fatal(err)
	}
	fmt.Println(tex.Status(), tex.UsedMemory())

	if err := e.Restore(ctx, resgo.PublicOwner, id); err != nil {
		log.Fatal(err)
	}
	fmt.Println(tex.Status(), tex.UsedMemory())
	// Output:
	// defined|cached 0
	// defined|loaded 32
}
