package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/resgo/resource"
	"github.com/hupe1980/resgo/testutil"
)

type closingPlain struct {
	*testutil.Plain
	closed int
}

func (c *closingPlain) Close() error {
	c.closed++
	return nil
}

func newAsset() (*testutil.Asset, error) {
	return testutil.NewAsset(resource.KindMesh, []byte("mesh-data")), nil
}

func TestCreate_NormalOverwrites(t *testing.T) {
	var erased []resource.ID
	tbl := New("scope", Normal, WithEraseHook(func(id resource.ID) { erased = append(erased, id) }))

	first := &closingPlain{Plain: testutil.NewPlain(resource.KindShader)}
	_, err := Create(tbl, 42, func() (*closingPlain, error) { return first, nil })
	require.NoError(t, err)

	second, err := Create(tbl, 42, newAsset)
	require.NoError(t, err)

	got, ok := Get[*testutil.Asset](tbl, 42)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, 1, first.closed, "replaced occupant is destroyed")
	assert.Empty(t, erased, "overwrite keeps the handle occupied")
}

func TestCreate_StrictOccupancy(t *testing.T) {
	tbl := New("scope", Strict)

	foo, err := Create(tbl, 7, newAsset)
	require.NoError(t, err)

	called := false
	_, err = Create(tbl, 7, func() (*testutil.Plain, error) {
		called = true
		return testutil.NewPlain(resource.KindTexture), nil
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.False(t, called, "constructor must not run for occupied handles")

	got, ok := Get[*testutil.Asset](tbl, 7)
	require.True(t, ok)
	assert.Same(t, foo, got)
}

func TestCreate_ConstructionFailure(t *testing.T) {
	tbl := New("scope", Normal)
	orig, err := Create(tbl, 1, newAsset)
	require.NoError(t, err)

	errCtor := errors.New("out of video memory")
	_, err = Create(tbl, 1, func() (*testutil.Asset, error) { return nil, errCtor })
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, errCtor)

	_, err = Create(tbl, 1, func() (*testutil.Asset, error) { panic("boom") })
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, ErrPanicked)

	_, err = Create(tbl, 1, func() (*testutil.Asset, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrConstruction)

	got, ok := Get[*testutil.Asset](tbl, 1)
	require.True(t, ok)
	assert.Same(t, orig, got, "failed constructions leave the table unchanged")

	_, err = Create(tbl, resource.InvalidID, newAsset)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestGet_TypeMismatch(t *testing.T) {
	tbl := New("scope", Normal)
	_, err := Create(tbl, 3, newAsset)
	require.NoError(t, err)

	_, ok := Get[*testutil.Plain](tbl, 3)
	assert.False(t, ok)
	_, ok = Get[*testutil.Asset](tbl, 4)
	assert.False(t, ok)

	res, ok := tbl.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, resource.KindMesh, res.Kind())
}

func TestAdopt(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		tbl := New("scope", Normal)
		require.NoError(t, tbl.Adopt(5, testutil.NewPlain(resource.KindLight)))
		require.NoError(t, tbl.Adopt(5, testutil.NewPlain(resource.KindCamera)))
		res, _ := tbl.Lookup(5)
		assert.Equal(t, resource.KindCamera, res.Kind())

		var nilPlain *testutil.Plain
		require.NoError(t, tbl.Adopt(5, nilPlain))
		assert.False(t, tbl.Contains(5))
	})

	t.Run("strict", func(t *testing.T) {
		tbl := New("scope", Strict)
		require.NoError(t, tbl.Adopt(5, testutil.NewPlain(resource.KindLight)))
		assert.ErrorIs(t, tbl.Adopt(5, testutil.NewPlain(resource.KindCamera)), ErrAlreadyExists)
		assert.ErrorIs(t, tbl.Adopt(6, nil), ErrNilResource)
		assert.False(t, tbl.Contains(6))
	})
}

func TestReplace(t *testing.T) {
	normal := New("n", Normal)
	require.NoError(t, normal.Replace(9, testutil.NewPlain(resource.KindBlob)))
	assert.True(t, normal.Contains(9))

	strict := New("s", Strict)
	assert.ErrorIs(t, strict.Replace(9, testutil.NewPlain(resource.KindBlob)), ErrNotFound)

	require.NoError(t, strict.Adopt(9, testutil.NewPlain(resource.KindBlob)))
	require.NoError(t, strict.Replace(9, testutil.NewPlain(resource.KindModel)))
	res, _ := strict.Lookup(9)
	assert.Equal(t, resource.KindModel, res.Kind())

	_, err := ReplaceWith(strict, 10, newAsset)
	assert.ErrorIs(t, err, ErrNotFound)
	a, err := ReplaceWith(strict, 9, newAsset)
	require.NoError(t, err)
	got, ok := Get[*testutil.Asset](strict, 9)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestDelete_StrictReferences(t *testing.T) {
	var erased []resource.ID
	tbl := New("scope", Strict, WithEraseHook(func(id resource.ID) { erased = append(erased, id) }))
	_, err := Create(tbl, 1, newAsset)
	require.NoError(t, err)

	ref, ok := tbl.Share(1)
	require.True(t, ok)
	assert.Equal(t, 2, tbl.UseCount(1))

	assert.False(t, tbl.Delete(1))
	assert.True(t, tbl.Contains(1))

	ref.Release()
	ref.Release()
	assert.Equal(t, 1, tbl.UseCount(1))

	assert.True(t, tbl.Delete(1))
	assert.False(t, tbl.Contains(1))
	assert.Equal(t, 0, tbl.UseCount(1))
	assert.False(t, tbl.Delete(1))
	assert.Equal(t, []resource.ID{1}, erased)
}

func TestDelete_NormalIgnoresReferences(t *testing.T) {
	tbl := New("scope", Normal)
	_, err := Create(tbl, 1, newAsset)
	require.NoError(t, err)

	ref, ok := tbl.Share(1)
	require.True(t, ok)
	assert.True(t, tbl.Delete(1))
	assert.NotNil(t, ref.Resource(), "the reference keeps the resource reachable")
}

func TestCheckFlags(t *testing.T) {
	tbl := New("scope", Normal)
	_, err := Create(tbl, 2, newAsset)
	require.NoError(t, err)
	require.NoError(t, tbl.Load(2))

	assert.True(t, tbl.CheckFlags(2, resource.Presented|resource.Loaded, 0, resource.MatchAll))
	assert.False(t, tbl.CheckFlags(2, resource.Loaded, resource.Presented, resource.MatchAll))
	assert.True(t, tbl.CheckFlags(2, resource.Cached, resource.Invalid, resource.MatchAny))

	// absence short-circuits to the down mask
	assert.True(t, tbl.CheckFlags(99, 0, resource.Presented, resource.MatchAll))
	assert.True(t, tbl.CheckFlags(99, resource.Loaded, resource.Presented, resource.MatchAny))
	assert.False(t, tbl.CheckFlags(99, resource.Presented, 0, resource.MatchAll))
	assert.False(t, tbl.CheckFlags(99, resource.Loaded, resource.Cached, resource.MatchAny))
}

func TestCheckFlags_PurgesInvalidOnce(t *testing.T) {
	var erased []resource.ID
	tbl := New("scope", Strict, WithEraseHook(func(id resource.ID) { erased = append(erased, id) }))
	a, err := Create(tbl, 4, newAsset)
	require.NoError(t, err)

	ref, _ := tbl.Share(4)
	defer ref.Release()

	a.Invalidate()
	assert.True(t, tbl.CheckFlags(4, resource.Presented|resource.Invalid, 0, resource.MatchAll))
	assert.False(t, tbl.Contains(4), "invalid occupant purged even while referenced")

	assert.False(t, tbl.CheckFlags(4, resource.Presented, 0, resource.MatchAll))
	assert.Equal(t, []resource.ID{4}, erased)
}

func TestCopyMove(t *testing.T) {
	var erased []resource.ID
	tbl := New("scope", Normal, WithEraseHook(func(id resource.ID) { erased = append(erased, id) }))
	src, err := Create(tbl, 1, newAsset)
	require.NoError(t, err)
	require.NoError(t, tbl.Adopt(2, testutil.NewPlain(resource.KindLight)))

	_, err = tbl.Copy(2, 3)
	assert.ErrorIs(t, err, ErrNotCopyable)
	_, err = tbl.Copy(50, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := tbl.Copy(1, 3)
	require.NoError(t, err)
	assert.NotSame(t, src, c)
	assert.Equal(t, src.Source, c.(*testutil.Asset).Source)
	assert.True(t, tbl.Contains(1))

	ref, _ := tbl.Share(1)
	m, err := tbl.Move(1, 4)
	require.NoError(t, err)
	assert.Same(t, src, m)
	assert.False(t, tbl.Contains(1))
	assert.Equal(t, 2, tbl.UseCount(4), "references follow the moved resource")
	ref.Release()
	assert.Equal(t, []resource.ID{1}, erased)

	_, err = tbl.Move(1, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCopyMove_StrictDestination(t *testing.T) {
	tbl := New("scope", Strict)
	_, err := Create(tbl, 1, newAsset)
	require.NoError(t, err)
	_, err = Create(tbl, 2, newAsset)
	require.NoError(t, err)

	_, err = tbl.Copy(1, 2)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = tbl.Move(1, 2)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.True(t, tbl.Contains(1))
}

func TestTransfer(t *testing.T) {
	src := New("a", Normal)
	dst := New("b", Strict)

	a, err := Create(src, 8, newAsset)
	require.NoError(t, err)
	ref, _ := src.Share(8)
	defer ref.Release()

	require.NoError(t, Transfer(src, dst, 8))
	assert.False(t, src.Contains(8))
	got, ok := Get[*testutil.Asset](dst, 8)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 2, dst.UseCount(8))

	_, err = Create(src, 8, newAsset)
	require.NoError(t, err)
	assert.ErrorIs(t, Transfer(src, dst, 8), ErrAlreadyExists)
	assert.ErrorIs(t, Transfer(src, dst, 9), ErrNotFound)
}

func TestDebugNames(t *testing.T) {
	named := New("scope", Normal, WithDebugNames(true))
	a, err := Create(named, 5, newAsset)
	require.NoError(t, err)
	assert.Equal(t, "mesh#5", a.Name())

	b := testutil.NewAsset(resource.KindMesh, nil)
	b.SetName("hero")
	require.NoError(t, named.Adopt(6, b))
	assert.Equal(t, "hero", b.Name())

	plain := New("scope", Normal)
	c := testutil.NewAsset(resource.KindMesh, nil)
	c.SetName("hero")
	require.NoError(t, plain.Adopt(1, c))
	assert.Empty(t, c.Name())
}

func TestStats(t *testing.T) {
	tbl := New("scope", Strict)
	for id := resource.ID(1); id <= 3; id++ {
		_, err := Create(tbl, id, newAsset)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Load(1))
	a, _ := Get[*testutil.Asset](tbl, 3)
	a.Invalidate()
	ref, _ := tbl.Share(2)
	defer ref.Release()

	st := tbl.Stats()
	assert.Equal(t, "scope", st.Name)
	assert.Equal(t, "strict", st.Policy)
	assert.Equal(t, 3, st.Len)
	assert.Equal(t, 1, st.Loaded)
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 1, st.Referenced)
	assert.Equal(t, int64(len("mesh-data")), st.UsedMemory)
	assert.Equal(t, []resource.ID{1, 2, 3}, tbl.Handles())
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, Strict, PolicyFor(true))
	assert.Equal(t, Normal, PolicyFor(false))
	assert.Equal(t, "normal", Normal.String())

	s, err := ParseSweep("ALL")
	require.NoError(t, err)
	assert.Equal(t, SweepAll, s)
	_, err = ParseSweep("some")
	assert.Error(t, err)
}
