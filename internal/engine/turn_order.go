package engine

import "slices"

// successor returns the next seat after p, wrapping around.
func successor(players []string, p string) string {
	i := slices.Index(players, p)
	if i < 0 || len(players) == 0 {
		return ""
	}
	return players[(i+1)%len(players)]
}
