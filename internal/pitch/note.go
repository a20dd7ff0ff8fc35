// SPDX-License-Identifier: MIT
package pitch

import (
	"fmt"
	"math"
)

// ReferenceA4 is the concert pitch used for note naming.
const ReferenceA4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteInfo names the equal-tempered note nearest to a frequency.
type NoteInfo struct {
	Name   string  // Pitch class, e.g. "A" or "C#".
	Octave int     // Scientific pitch notation octave, A4 = 440 Hz.
	Cents  float64 // Deviation from the named note, within ±50.
	MIDI   int     // MIDI note number, A4 = 69.
}

// Note returns the note nearest to freq. ok is false for frequencies that
// carry no pitch.
func Note(freq float64) (info NoteInfo, ok bool) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return NoteInfo{}, false
	}
	semis := 12 * math.Log2(freq/ReferenceA4)
	nearest := math.Round(semis)
	midi := int(nearest) + 69

	pc := midi % 12
	if pc < 0 {
		pc += 12
	}
	octave := midi/12 - 1
	if midi < 0 && midi%12 != 0 {
		octave--
	}
	return NoteInfo{
		Name:   noteNames[pc],
		Octave: octave,
		Cents:  (semis - nearest) * 100,
		MIDI:   midi,
	}, true
}

// String formats the note as "A4 +3c".
func (n NoteInfo) String() string {
	return fmt.Sprintf("%s%d %+.0fc", n.Name, n.Octave, n.Cents)
}

// Label returns the note name with octave, e.g. "C#5".
func (n NoteInfo) Label() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}
