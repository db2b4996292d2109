package model_test

import (
	"testing"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestValidateTableName(t *testing.T) {
	valid := []string{"messages", "facts", "lore_v2", "_private", "Fragments"}
	for _, name := range valid {
		gt.NoError(t, model.ValidateTableName(name))
	}

	invalid := []string{"", "my table", "memories; DROP TABLE rooms", "1messages", "mem-ories", `"quoted"`}
	for _, name := range invalid {
		err := model.ValidateTableName(name)
		gt.Error(t, err).Describef("table %q should be rejected", name)
		gt.True(t, model.IsValidation(err))
	}
}

func TestMemoryValidate(t *testing.T) {
	newMemory := func() *model.Memory {
		return &model.Memory{
			ID:     model.NewMemoryID(),
			Table:  model.TableMessages,
			RoomID: model.NewRoomID(),
			Content: model.MemoryContent{
				Text: "hello there",
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		gt.NoError(t, newMemory().Validate())
	})

	t.Run("missing table", func(t *testing.T) {
		m := newMemory()
		m.Table = ""
		err := m.Validate()
		gt.Error(t, err)
		gt.True(t, model.IsValidation(err))
	})

	t.Run("missing room", func(t *testing.T) {
		m := newMemory()
		m.RoomID = ""
		err := m.Validate()
		gt.Error(t, err)
		gt.True(t, model.IsValidation(err))
	})

	t.Run("missing content text", func(t *testing.T) {
		m := newMemory()
		m.Content.Text = ""
		err := m.Validate()
		gt.Error(t, err)
		gt.True(t, model.IsValidation(err))
	})
}
