package upload

import (
	"sort"

	"github.com/saphetor/vc-file-upload/upload/network"
)

// UnknownSize is reported for files whose size could not be determined.
const UnknownSize int64 = -1

// Target is a file to transfer: where it is read from and the name it gets on the service.
// Names do not have to be unique, locators do.
type Target struct {
	Locator string
	Name    string
}

// Record is the service response for one file.
type Record = network.Record

// Outcome maps every input locator to its Record. A nil Record means the file was not transferred.
type Outcome map[string]Record

// Succeeded returns the number of files that were transferred.
func (o Outcome) Succeeded() int {
	count := 0
	for _, record := range o {
		if record != nil {
			count++
		}
	}
	return count
}

// Failed returns the locators that were not transferred, sorted.
func (o Outcome) Failed() []string {
	var failed []string
	for locator, record := range o {
		if record == nil {
			failed = append(failed, locator)
		}
	}
	sort.Strings(failed)
	return failed
}

// Targets turns a locator -> name mapping into targets ordered by locator.
func Targets(files map[string]string) []Target {
	targets := make([]Target, 0, len(files))
	for locator, name := range files {
		targets = append(targets, Target{Locator: locator, Name: name})
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Locator < targets[j].Locator
	})
	return targets
}
