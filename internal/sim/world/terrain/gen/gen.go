// Package gen produces terrain columns from a seed. Every helper is a pure
// function of its inputs so a chunk regenerates identically on any machine.
package gen

import "voxelstore.ai/internal/sim/world/logic/mathx"

func FloorDiv(a, b int) int {
	return mathx.FloorDiv(a, b)
}

func Mod(a, b int) int {
	return mathx.Mod(a, b)
}

func Hash2(seed int64, x, z int) uint64 {
	return mathx.Hash2(seed, x, z)
}

func Hash3(seed int64, x, y, z int) uint64 {
	return mathx.Hash3(seed, x, y, z)
}

type Biome uint8

const (
	Plains Biome = iota
	Forest
	Desert
)

func (b Biome) String() string {
	switch b {
	case Forest:
		return "FOREST"
	case Desert:
		return "DESERT"
	default:
		return "PLAINS"
	}
}

func BiomeFrom(noise uint64) Biome {
	return Biome(noise % 3)
}

func BiomeAt(seed int64, x, z, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := FloorDiv(x, regionSize)
	rz := FloorDiv(z, regionSize)
	return BiomeFrom(Hash2(seed, rx, rz))
}

func WithinSpawnClear(x, z, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dz := int64(z)
	return dx*dx+dz*dz <= r*r
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// ClusterCenter reports whether (x, z) lies within radius of the cluster
// center of one of the nine grid cells around it, and returns the hash of the
// matching cell.
func ClusterCenter(seed int64, x, z, grid, radius int, probPermille uint64) (uint64, bool) {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return 0, false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return h, true
			}
		}
	}
	return 0, false
}

func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	_, ok := ClusterCenter(seed, x, z, grid, radius, probPermille)
	return ok
}

// ValueNoise returns smooth noise in [0, 1000] by bilinear interpolation of
// hashed lattice points spaced cell blocks apart.
func ValueNoise(seed int64, x, z, cell int) int {
	if cell <= 1 {
		return int(Hash2(seed, x, z) % 1001)
	}
	gx, fx := FloorDiv(x, cell), Mod(x, cell)
	gz, fz := FloorDiv(z, cell), Mod(z, cell)
	corner := func(dx, dz int) int { return int(Hash2(seed, gx+dx, gz+dz) % 1001) }
	top := corner(0, 0)*(cell-fx) + corner(1, 0)*fx
	bot := corner(0, 1)*(cell-fx) + corner(1, 1)*fx
	return (top*(cell-fz) + bot*fz) / (cell * cell)
}
