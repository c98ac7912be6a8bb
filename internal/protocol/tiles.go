package protocol

// Tile identifiers as sent in the second byte of a reply frame.
const (
	TileCPU     byte = 0x53
	TileGPU     byte = 0x36
	TileMemory  byte = 0x49
	TileDisk    byte = 0x4F
	TileDate    byte = 0x6B
	TileNetwork byte = 0x27
	TileVolume  byte = 0x10
	TileBattery byte = 0x1A
)
