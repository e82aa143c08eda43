package service

import "strings"

// IndexTitle returns the title to index for search: the event title plus
// every word of the location name and sort name it does not already contain.
func IndexTitle(title, locationName, locationSortName string) string {
	words := strings.Fields(locationName + " " + locationSortName)
	for _, w := range words {
		if !strings.Contains(" "+title+" ", " "+w+" ") {
			title = title + " " + w
		}
	}
	return title
}
