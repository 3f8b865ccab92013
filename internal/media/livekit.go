package media

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
	"github.com/twitchtv/twirp"

	"github.com/isqad/syncflow/internal/access"
	"github.com/isqad/syncflow/internal/config"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/telemetry"
)

// adminTokenTTL bounds the tokens used to authenticate management calls.
const adminTokenTTL = time.Minute

// LiveKit talks to a LiveKit server over its twirp API.
type LiveKit struct {
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	timeout   time.Duration

	rooms  livekit.RoomService
	egress livekit.Egress
}

func NewLiveKit(cfg config.LiveKitConfig) *LiveKit {
	url := toHTTPURL(cfg.URL)
	client := &http.Client{Timeout: cfg.RequestTimeout}

	return &LiveKit{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		tokenTTL:  cfg.TokenTTL,
		timeout:   cfg.RequestTimeout,
		rooms:     livekit.NewRoomServiceProtobufClient(url, client),
		egress:    livekit.NewEgressProtobufClient(url, client),
	}
}

func (s *LiveKit) CreateRoom(ctx context.Context, opts RoomOptions) (room *Room, err error) {
	defer s.observe("create_room", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomCreate: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := s.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            opts.Name,
		EmptyTimeout:    opts.EmptyTimeout,
		MaxParticipants: opts.MaxParticipants,
		Metadata:        opts.Metadata,
	})
	if err != nil {
		return nil, wrapError("create room", err)
	}

	return roomFromInfo(res), nil
}

func (s *LiveKit) DeleteRoom(ctx context.Context, name string) (err error) {
	defer s.observe("delete_room", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomCreate: true})
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := s.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name}); err != nil {
		return wrapError("delete room", err)
	}
	return nil
}

func (s *LiveKit) ListRooms(ctx context.Context, names ...string) (rooms []*Room, err error) {
	defer s.observe("list_rooms", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomList: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := s.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{Names: names})
	if err != nil {
		return nil, wrapError("list rooms", err)
	}

	rooms = make([]*Room, 0, len(res.Rooms))
	for _, r := range res.Rooms {
		rooms = append(rooms, roomFromInfo(r))
	}
	return rooms, nil
}

func (s *LiveKit) ListParticipants(ctx context.Context, room string) (participants []*Participant, err error) {
	defer s.observe("list_participants", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomAdmin: true, Room: room})
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := s.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, wrapError("list participants", err)
	}

	participants = make([]*Participant, 0, len(res.Participants))
	for _, p := range res.Participants {
		participants = append(participants, participantFromInfo(p))
	}
	return participants, nil
}

// IssueToken signs a join token locally; it never reaches the media server.
func (s *LiveKit) IssueToken(_ context.Context, identity string, grant *access.AccessGrant) (token string, err error) {
	defer s.observe("issue_token", &err)

	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		AddGrant(VideoGrant(grant)).
		SetIdentity(identity).
		SetValidFor(s.tokenTTL)
	if grant.Name != "" {
		at.SetName(grant.Name)
	}

	token, err = at.ToJWT()
	if err != nil {
		return "", &Error{Reason: Unavailable, Op: "issue token", Err: err}
	}
	return token, nil
}

func (s *LiveKit) StartTrackEgress(ctx context.Context, room, trackID string, dest Destination) (job *JobHandle, err error) {
	defer s.observe("start_track_egress", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomRecord: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	output := &livekit.DirectFileOutput{Filepath: dest.Filepath}
	if dest.S3 != nil {
		output.Output = &livekit.DirectFileOutput_S3{S3: s3Upload(dest.S3)}
	}

	info, err := s.egress.StartTrackEgress(ctx, &livekit.TrackEgressRequest{
		RoomName: room,
		TrackId:  trackID,
		Output:   &livekit.TrackEgressRequest_File{File: output},
	})
	if err != nil {
		return nil, wrapError("start track egress", err)
	}

	return JobFromInfo(info), nil
}

func (s *LiveKit) StartRoomEgress(ctx context.Context, room string, dest Destination) (job *JobHandle, err error) {
	defer s.observe("start_room_egress", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomRecord: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	output := &livekit.EncodedFileOutput{
		FileType: livekit.EncodedFileType_MP4,
		Filepath: dest.Filepath,
	}
	if dest.S3 != nil {
		output.Output = &livekit.EncodedFileOutput_S3{S3: s3Upload(dest.S3)}
	}

	info, err := s.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: room,
		Layout:   "speaker",
		Output:   &livekit.RoomCompositeEgressRequest_File{File: output},
	})
	if err != nil {
		return nil, wrapError("start room egress", err)
	}

	return JobFromInfo(info), nil
}

func (s *LiveKit) StopEgress(ctx context.Context, egressID string) (job *JobHandle, err error) {
	defer s.observe("stop_egress", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomRecord: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := s.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID})
	if err != nil {
		return nil, wrapError("stop egress", err)
	}

	return JobFromInfo(info), nil
}

func (s *LiveKit) ListEgress(ctx context.Context, room string) (jobs []*JobHandle, err error) {
	defer s.observe("list_egress", &err)

	ctx, cancel, err := s.withGrant(ctx, &auth.VideoGrant{RoomRecord: true})
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := s.egress.ListEgress(ctx, &livekit.ListEgressRequest{RoomName: room})
	if err != nil {
		return nil, wrapError("list egress", err)
	}

	jobs = make([]*JobHandle, 0, len(res.Items))
	for _, info := range res.Items {
		jobs = append(jobs, JobFromInfo(info))
	}
	return jobs, nil
}

// withGrant attaches a short-lived bearer token carrying grant to ctx.
func (s *LiveKit) withGrant(ctx context.Context, grant *auth.VideoGrant) (context.Context, context.CancelFunc, error) {
	token, err := auth.NewAccessToken(s.apiKey, s.apiSecret).
		AddGrant(grant).
		SetValidFor(adminTokenTTL).
		ToJWT()
	if err != nil {
		return nil, nil, &Error{Reason: Unauthorized, Op: "sign request", Err: err}
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)

	tctx, err := twirp.WithHTTPRequestHeaders(ctx, header)
	if err != nil {
		return nil, nil, &Error{Reason: Unavailable, Op: "sign request", Err: err}
	}

	if s.timeout > 0 {
		tctx, cancel := context.WithTimeout(tctx, s.timeout)
		return tctx, cancel, nil
	}
	return tctx, func() {}, nil
}

func (s *LiveKit) observe(op string, err *error) {
	reason := ""
	if *err != nil {
		reason = string(ReasonOf(*err))
		log.Error().Err(*err).Str("service", "media").Str("op", op).Msg("media server call failed")
	}
	telemetry.MediaOperation(op, *err, reason)
}

// VideoGrant converts an access grant into LiveKit's token claims.
func VideoGrant(grant *access.AccessGrant) *auth.VideoGrant {
	c := grant.Capabilities
	canUpdateOwnMetadata := c.CanUpdateOwnMetadata

	vg := &auth.VideoGrant{
		Room:                 grant.RoomName,
		RoomJoin:             c.RoomJoin,
		RoomCreate:           c.RoomCreate,
		RoomAdmin:            c.RoomAdmin,
		RoomRecord:           c.RoomRecord,
		CanUpdateOwnMetadata: &canUpdateOwnMetadata,
	}
	vg.SetCanPublish(c.CanPublish)
	vg.SetCanSubscribe(c.CanSubscribe)
	vg.SetCanPublishData(c.CanPublishData)

	return vg
}

func s3Upload(c *core.StorageConfig) *livekit.S3Upload {
	return &livekit.S3Upload{
		AccessKey:      c.AccessKey,
		Secret:         c.Secret,
		Region:         c.Region,
		Endpoint:       c.Endpoint,
		Bucket:         c.Bucket,
		ForcePathStyle: c.ForcePathStyle,
	}
}

func roomFromInfo(r *livekit.Room) *Room {
	return &Room{
		Sid:             r.Sid,
		Name:            r.Name,
		NumParticipants: int(r.NumParticipants),
		ActiveRecording: r.ActiveRecording,
		CreatedAt:       time.Unix(r.CreationTime, 0).UTC(),
	}
}

func participantFromInfo(p *livekit.ParticipantInfo) *Participant {
	participant := &Participant{
		Sid:      p.Sid,
		Identity: p.Identity,
		Name:     p.Name,
		JoinedAt: time.Unix(p.JoinedAt, 0).UTC(),
		Tracks:   make([]Track, 0, len(p.Tracks)),
	}
	for _, t := range p.Tracks {
		participant.Tracks = append(participant.Tracks, Track{
			Sid:    t.Sid,
			Name:   t.Name,
			Kind:   trackKind(t),
			Source: strings.ToLower(t.Source.String()),
			Muted:  t.Muted,
		})
	}
	return participant
}

func trackKind(t *livekit.TrackInfo) TrackKind {
	switch t.Source {
	case livekit.TrackSource_SCREEN_SHARE:
		return TrackScreenShare
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return TrackScreenShareAudio
	}
	switch t.Type {
	case livekit.TrackType_AUDIO:
		return TrackAudio
	case livekit.TrackType_VIDEO:
		return TrackVideo
	}
	return TrackData
}

// EgressStatus maps LiveKit's egress states onto the persisted ones.
func EgressStatus(s livekit.EgressStatus) core.EgressStatus {
	switch s {
	case livekit.EgressStatus_EGRESS_ACTIVE, livekit.EgressStatus_EGRESS_ENDING:
		return core.EgressActive
	case livekit.EgressStatus_EGRESS_COMPLETE, livekit.EgressStatus_EGRESS_LIMIT_REACHED:
		return core.EgressComplete
	case livekit.EgressStatus_EGRESS_FAILED:
		return core.EgressFailed
	case livekit.EgressStatus_EGRESS_ABORTED:
		return core.EgressAborted
	default:
		return core.EgressStarting
	}
}

// JobFromInfo converts an egress info, as returned by the API or carried by
// a webhook, into a job handle.
func JobFromInfo(info *livekit.EgressInfo) *JobHandle {
	job := &JobHandle{
		EgressID: info.EgressId,
		RoomName: info.RoomName,
		Status:   EgressStatus(info.Status),
		Error:    info.Error,
	}
	if info.StartedAt > 0 {
		job.StartedAt = time.Unix(0, info.StartedAt).UTC()
	}
	if info.EndedAt > 0 {
		endedAt := time.Unix(0, info.EndedAt).UTC()
		job.EndedAt = &endedAt
	}

	switch req := info.Request.(type) {
	case *livekit.EgressInfo_Track:
		job.TrackID = req.Track.TrackId
		if f := req.Track.GetFile(); f != nil {
			job.DestinationPath = f.Filepath
		}
	case *livekit.EgressInfo_RoomComposite:
		if f := req.RoomComposite.GetFile(); f != nil {
			job.DestinationPath = f.Filepath
		}
	}
	if f := info.GetFile(); f != nil && f.Filename != "" {
		job.DestinationPath = f.Filename
	}

	return job
}

func toHTTPURL(url string) string {
	if strings.HasPrefix(url, "ws") {
		return strings.Replace(url, "ws", "http", 1)
	}
	return url
}
