// Package conflict implements whole-entity last-writer-wins merging of
// pulled records into the local store.
package conflict

import "bizsync/internal/domain"

type Decision int

const (
	// Insert: no local copy exists, store the pulled record clean.
	Insert Decision = iota + 1
	// Overwrite: the local copy is clean, the pulled record replaces it.
	Overwrite
	// RemoteWins: the local copy is dirty but the pulled record supersedes it.
	RemoteWins
	// LocalWins: the local dirty copy is not older, keep it for the next push.
	LocalWins
	// Skip: the pulled record would resurrect a clean local tombstone.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case Overwrite:
		return "overwrite"
	case RemoteWins:
		return "remote_wins"
	case LocalWins:
		return "local_wins"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Applies reports whether the pulled record must be written locally.
func (d Decision) Applies() bool {
	return d == Insert || d == Overwrite || d == RemoteWins
}

// Resolve decides how an incoming record merges with the local copy.
// local is nil when the record does not exist locally.
func Resolve(local, incoming domain.Entity) Decision {
	if local == nil {
		return Insert
	}

	l := local.GetMeta()
	in := incoming.GetMeta()

	if l.Dirty {
		// a remote tombstone is authoritative over a pending local edit
		if in.Deleted && !l.Deleted {
			return RemoteWins
		}
		if in.UpdatedAt > l.UpdatedAt {
			return RemoteWins
		}
		return LocalWins
	}

	if l.Deleted && !in.Deleted && in.UpdatedAt <= l.UpdatedAt {
		return Skip
	}
	return Overwrite
}
