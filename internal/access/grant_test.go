package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/syncflow/internal/core"
)

var testUser = &core.User{ID: "u-1", UID: "firebase-uid-1", Name: "Alice"}

func TestBuildGrantPolicyTable(t *testing.T) {
	cases := []struct {
		name   string
		role   core.UserRoleName
		intent Intent
		want   Capabilities
	}{
		{
			name:   "viewer",
			role:   core.RoleUser,
			intent: JoinAsViewer,
			want:   Capabilities{CanSubscribe: true, RoomJoin: true},
		},
		{
			name:   "publisher as user",
			role:   core.RoleUser,
			intent: JoinAsPublisher,
			want: Capabilities{
				CanPublish: true, CanSubscribe: true, CanPublishData: true,
				CanUpdateOwnMetadata: true, RoomJoin: true,
			},
		},
		{
			name:   "publisher as admin",
			role:   core.RoleAdmin,
			intent: JoinAsPublisher,
			want: Capabilities{
				CanPublish: true, CanSubscribe: true, CanPublishData: true,
				CanUpdateOwnMetadata: true, RoomJoin: true, RoomCreate: true,
			},
		},
		{
			name:   "moderator",
			role:   core.RoleAdmin,
			intent: Moderate,
			want: Capabilities{
				CanPublish: true, CanSubscribe: true, CanPublishData: true,
				CanUpdateOwnMetadata: true, RoomJoin: true, RoomCreate: true,
				RoomAdmin: true, RoomRecord: true,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			grant, err := BuildGrant(testUser, c.role, "P_abc", c.intent)
			require.NoError(t, err)

			assert.Equal(t, "firebase-uid-1", grant.Identity)
			assert.Equal(t, "P_abc", grant.RoomName)
			assert.Equal(t, c.want, grant.Capabilities)
		})
	}
}

func TestBuildGrantViewerNeverPublishes(t *testing.T) {
	for _, role := range []core.UserRoleName{core.RoleUser, core.RoleAdmin} {
		grant, err := BuildGrant(testUser, role, "room", JoinAsViewer)
		require.NoError(t, err)
		assert.False(t, grant.Capabilities.CanPublish)
		assert.True(t, grant.Capabilities.CanSubscribe)
	}
}

func TestBuildGrantErrors(t *testing.T) {
	t.Run("user can't moderate", func(t *testing.T) {
		_, err := BuildGrant(testUser, core.RoleUser, "room", Moderate)
		assert.True(t, errors.Is(err, core.ErrUnauthorized))
		assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, err := BuildGrant(testUser, core.RoleAdmin, "room", Intent("dance"))
		assert.True(t, errors.Is(err, core.ErrInvalidIntent))
		assert.Equal(t, core.KindValidation, core.KindOf(err))
	})

	t.Run("empty room", func(t *testing.T) {
		_, err := BuildGrant(testUser, core.RoleAdmin, "  ", JoinAsViewer)
		assert.True(t, errors.Is(err, core.ErrInvalidRoomName))
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := BuildGrant(testUser, core.UserRoleName("root"), "room", JoinAsViewer)
		assert.True(t, errors.Is(err, core.ErrInvalidRole))
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := BuildGrant(nil, core.RoleUser, "room", JoinAsViewer)
		assert.True(t, errors.Is(err, core.ErrUnauthorized))
	})
}
