package schedule

import "strings"

// Room codes come from the fixed campus floor plans: building D has three
// floors of four rooms, building F two floors of two rooms.
var (
	BuildingD = [][]string{
		{"D.3.4", "D.3.3", "D.3.2", "D.3.1"},
		{"D.2.4", "D.2.3", "D.2.2", "D.2.1"},
		{"D.1.4", "D.1.3", "D.1.2", "D.1.1"},
	}
	BuildingF = [][]string{
		{"F.2.2", "F.2.1"},
		{"F.1.2", "F.1.1"},
	}
)

var validRooms = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, building := range [][][]string{BuildingD, BuildingF} {
		for _, floor := range building {
			for _, room := range floor {
				set[room] = struct{}{}
			}
		}
	}
	return set
}()

// Rooms returns every valid room code in floor-plan order.
func Rooms() []string {
	out := make([]string, 0, len(validRooms))
	for _, building := range [][][]string{BuildingD, BuildingF} {
		for _, floor := range building {
			out = append(out, floor...)
		}
	}
	return out
}

// IsValidRoom reports whether code names a room on the floor plans.
// Comparison is case-insensitive.
func IsValidRoom(code string) bool {
	_, ok := validRooms[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
