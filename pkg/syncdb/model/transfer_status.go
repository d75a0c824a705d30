package model

import (
	"encoding/json"
	"fmt"
)

type TransferStatus int

const (
	TransferStatusEnqueued TransferStatus = iota
	TransferStatusInProgress
	TransferStatusFinished
)

var transferStatusNames = map[TransferStatus]string{
	TransferStatusEnqueued:   "ENQUEUED",
	TransferStatusInProgress: "IN_PROGRESS",
	TransferStatusFinished:   "FINISHED",
}

func (s TransferStatus) String() string {
	if name, ok := transferStatusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("TransferStatus(%d)", int(s))
}

func (s TransferStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// LocalBehaviour says what happens to the local copy once an upload succeeds.
type LocalBehaviour int

const (
	LocalBehaviourKeep LocalBehaviour = iota
	LocalBehaviourMove
	LocalBehaviourCopy
	LocalBehaviourForget
)

var localBehaviourNames = map[LocalBehaviour]string{
	LocalBehaviourKeep:   "KEEP",
	LocalBehaviourMove:   "MOVE",
	LocalBehaviourCopy:   "COPY",
	LocalBehaviourForget: "FORGET",
}

func (b LocalBehaviour) String() string {
	if name, ok := localBehaviourNames[b]; ok {
		return name
	}

	return fmt.Sprintf("LocalBehaviour(%d)", int(b))
}

func (b LocalBehaviour) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *LocalBehaviour) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseLocalBehaviour(name)
	if err != nil {
		return err
	}

	*b = parsed
	return nil
}

func ParseLocalBehaviour(name string) (LocalBehaviour, error) {
	if name == "" {
		return LocalBehaviourKeep, nil
	}

	for b, n := range localBehaviourNames {
		if n == name {
			return b, nil
		}
	}

	return LocalBehaviourKeep, fmt.Errorf("unknown local behaviour %q", name)
}

type CreatedBy int

const (
	CreatedByUser CreatedBy = iota
	CreatedByFolderBackup
)

func (c CreatedBy) String() string {
	switch c {
	case CreatedByUser:
		return "USER"
	case CreatedByFolderBackup:
		return "FOLDER_BACKUP"
	default:
		return fmt.Sprintf("CreatedBy(%d)", int(c))
	}
}

func (c CreatedBy) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}
