package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/testutil"
)

func TestUnitStyle_KnownNames(t *testing.T) {
	r, c := UnitStyle("MineralField750", nil)
	assert.Equal(t, 1.2, r)
	assert.Equal(t, ir.ColorLightBlue, c)

	r, c = UnitStyle("Nexus", testutil.Player(1))
	assert.Equal(t, 2.0, r)
	assert.Equal(t, ir.ColorPink, c)
}

func TestUnitStyle_FallsBackToOwnerColor(t *testing.T) {
	r, c := UnitStyle("Marine", testutil.Player(1))
	assert.Equal(t, DefaultUnitRadius, r)
	assert.Equal(t, ir.ColorLightBlue, c)

	_, c = UnitStyle("Marine", nil)
	assert.Equal(t, ir.ColorWhite, c)
}

func TestUserColor(t *testing.T) {
	assert.Equal(t, ir.ColorLightGreen, UserColor(0))
	assert.Equal(t, ir.ColorLightBlue, UserColor(1))
	assert.Equal(t, ir.ColorLightGray, UserColor(2))
	assert.Equal(t, ir.ColorWhite, UserColor(9))
}

func TestCreatorLabel(t *testing.T) {
	assert.Equal(t, "TrainMarine>Marine", CreatorLabel("TrainMarine", "Marine"))
	assert.Equal(t, "Marine", CreatorLabel("", "Marine"))
	assert.Equal(t, "Larva", CreatorLabel("Larva", "Larva"))
}

func TestStatPath(t *testing.T) {
	c := newStatCaser()

	assert.Equal(t, "MineralsCollectionRate/2", StatPath(c, "minerals_collection_rate", 2))
	assert.Equal(t, "FoodUsed/1", StatPath(c, "foodUsed", 1))
	assert.Equal(t, "VespeneLostArmy/1", StatPath(c, "vespene/lost_army", 1))
}

func TestEntityPaths(t *testing.T) {
	tag := testutil.Tag(5, 1)

	assert.Equal(t, "Unit/1310721/Born", unitPath(tag, "Born"))
	assert.Equal(t, "Death/1310721/160", deathPath(tag, 160))
	assert.Equal(t, "Camera/3", cameraPath(3))
}
