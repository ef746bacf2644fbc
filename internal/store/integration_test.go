//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/store"
	"github.com/JohanValero/research-agent/internal/testutil"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(tdb.Pool, log.NewNop())
	userID := uuid.New()

	t.Run("conversation lifecycle", func(t *testing.T) {
		conv, err := s.CreateConversation(ctx, userID, "research notes")
		require.NoError(t, err)
		require.Equal(t, userID, conv.UserID)
		require.Equal(t, "research notes", conv.Title)
		require.True(t, conv.Active)
		require.Nil(t, conv.LastMessageID)

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Equal(t, conv.ID, got.ID)

		newTitle := "renamed"
		inactive := false
		updated, err := s.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{
			Title:  &newTitle,
			Active: &inactive,
		})
		require.NoError(t, err)
		require.Equal(t, "renamed", updated.Title)
		require.False(t, updated.Active)

		list, err := s.ListConversations(ctx, userID, 0, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, s.DeleteConversation(ctx, conv.ID))
		_, err = s.GetConversation(ctx, conv.ID)
		require.ErrorIs(t, err, store.ErrConversationNotFound)
	})

	t.Run("append builds the chain", func(t *testing.T) {
		conv, err := s.CreateConversation(ctx, userID, "")
		require.NoError(t, err)

		human, err := s.Append(ctx, store.AppendParams{
			ConversationID: conv.ID,
			Author:         store.AuthorHuman,
			Fragments:      []store.Fragment{{Kind: store.FragmentText, Content: "what is Go?"}},
		})
		require.NoError(t, err)
		require.Nil(t, human.PreviousMessageID)

		agent, err := s.Append(ctx, store.AppendParams{
			ConversationID:    conv.ID,
			PreviousMessageID: &human.ID,
			Author:            store.AuthorAgent,
			Fragments: []store.Fragment{
				{Kind: store.FragmentThought, Content: "informational query"},
				{Kind: store.FragmentText, Content: "Go is a programming language."},
			},
		})
		require.NoError(t, err)

		// Pointer advanced.
		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessageID)
		require.Equal(t, agent.ID, *got.LastMessageID)

		// Chain comes back oldest-first.
		chain, err := s.ReconstructChain(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		require.Equal(t, human.ID, chain[0].ID)
		require.Equal(t, agent.ID, chain[1].ID)

		// Deleting a middle link truncates, it does not fail.
		require.NoError(t, s.DeleteMessage(ctx, human.ID))
		chain, err = s.ReconstructChain(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, chain, 1)
		require.Equal(t, agent.ID, chain[0].ID)
	})

	t.Run("append rejects unknown previous message", func(t *testing.T) {
		conv, err := s.CreateConversation(ctx, userID, "")
		require.NoError(t, err)

		phantom := uuid.New()
		_, err = s.Append(ctx, store.AppendParams{
			ConversationID:    conv.ID,
			PreviousMessageID: &phantom,
			Author:            store.AuthorHuman,
			Fragments:         []store.Fragment{{Kind: store.FragmentText, Content: "hi"}},
		})
		require.ErrorIs(t, err, store.ErrMessageNotFound)
	})

	t.Run("last n turns", func(t *testing.T) {
		conv, err := s.CreateConversation(ctx, userID, "")
		require.NoError(t, err)

		var prev *uuid.UUID
		texts := []string{"first", "second", "third"}
		authors := []store.AuthorKind{store.AuthorHuman, store.AuthorAgent, store.AuthorHuman}
		for i := range texts {
			msg, err := s.Append(ctx, store.AppendParams{
				ConversationID:    conv.ID,
				PreviousMessageID: prev,
				Author:            authors[i],
				Fragments:         []store.Fragment{{Kind: store.FragmentText, Content: texts[i]}},
			})
			require.NoError(t, err)
			prev = &msg.ID
		}

		turns, err := s.LastN(ctx, conv.ID, 2)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		require.Equal(t, store.RoleAssistant, turns[0].Role)
		require.Equal(t, "second", turns[0].Content)
		require.Equal(t, store.RoleUser, turns[1].Role)
		require.Equal(t, "third", turns[1].Content)
	})

	t.Run("fragment update round trip", func(t *testing.T) {
		conv, err := s.CreateConversation(ctx, userID, "")
		require.NoError(t, err)

		msg, err := s.Append(ctx, store.AppendParams{
			ConversationID: conv.ID,
			Author:         store.AuthorAgent,
			Fragments: []store.Fragment{{
				Kind:  store.FragmentTable,
				Table: &store.Table{Headers: []string{"lang"}, Rows: [][]string{{"go"}}},
			}},
		})
		require.NoError(t, err)

		updated, err := s.UpdateMessageFragments(ctx, msg.ID, []store.Fragment{
			{Kind: store.FragmentText, Content: "replaced"},
		})
		require.NoError(t, err)
		require.Len(t, updated.Fragments, 1)
		require.Equal(t, store.FragmentText, updated.Fragments[0].Kind)

		got, err := s.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, "replaced", got.Fragments[0].Content)
	})
}
