package tracecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_MissOnEmptyTable(t *testing.T) {
	c := New(8, 4)
	hit, _, _, _ := c.Lookup(0x1000, 0)
	assert.False(t, hit)
}

func TestRecordThenLookup_Hit(t *testing.T) {
	c := New(8, 4)
	mops := []uint64{0x1000, 0x1002, 0x1004}
	ok := c.Record(0x1000, 0xA, mops, 0x1006)
	require.True(t, ok)

	hit, mopCount, mopArray, neip := c.Lookup(0x1000, 0xA)
	require.True(t, hit)
	assert.Equal(t, 3, mopCount)
	assert.Equal(t, mops, mopArray)
	assert.Equal(t, uint64(0x1006), neip)
}

func TestLookup_DifferentMpredMisses(t *testing.T) {
	c := New(8, 4)
	c.Record(0x1000, 0xA, []uint64{0x1000}, 0x1002)

	hit, _, _, _ := c.Lookup(0x1000, 0xB)
	assert.False(t, hit, "a different predicted-direction bitmap must key a different line")
}

func TestRecord_RejectsLinesLongerThanBranchMax(t *testing.T) {
	c := New(8, 2)
	ok := c.Record(0x2000, 0, []uint64{1, 2, 3}, 0x2010)
	assert.False(t, ok)

	hit, _, _, _ := c.Lookup(0x2000, 0)
	assert.False(t, hit, "a rejected Record must not install a line")
}

func TestInvalidate_RemovesMatchingLine(t *testing.T) {
	c := New(8, 4)
	c.Record(0x3000, 0, []uint64{0x3000}, 0x3002)
	c.Invalidate(0x3000, 0)

	hit, _, _, _ := c.Lookup(0x3000, 0)
	assert.False(t, hit)
}

func TestInvalidate_LeavesOtherLinesOfDifferentKeyAlone(t *testing.T) {
	c := New(8, 4)
	c.Record(0x3000, 0, []uint64{0x3000}, 0x3002)
	c.Invalidate(0x3000, 1) // different mpred, same eip — should not match

	hit, _, _, _ := c.Lookup(0x3000, 0)
	assert.True(t, hit, "invalidate must only drop the exact (eip, mpred) line")
}

func TestNew_ZeroCapacityIsClampedToOne(t *testing.T) {
	c := New(0, 4)
	assert.Len(t, c.entries, 1)
}
