package mirror

import (
	"sort"
	"strconv"
	"strings"
)

// compareVersions orders dotted version strings numerically per component
// ("4.19.10" > "4.19.9"). Non-numeric components fall back to string order;
// on a common prefix the longer version wins.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])

		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}

		if as[i] != bs[i] {
			if as[i] < bs[i] {
				return -1
			}
			return 1
		}
	}

	if len(as) != len(bs) {
		if len(as) < len(bs) {
			return -1
		}
		return 1
	}

	return 0
}

// sortVersionsDesc sorts version strings highest-first, in place.
func sortVersionsDesc(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
}
