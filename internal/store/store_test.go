package store

import (
	"testing"
	"time"

	"supportchat/internal/db"
	"supportchat/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testStore dials the local test database directly (no retry loop) and
// wipes all tables so each test starts from a clean slate.
func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := "host=localhost user=postgres password=postgres dbname=supportchat_test port=5432 sslmode=disable TimeZone=UTC"
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if sqlDB, err := gdb.DB(); err != nil || sqlDB.Ping() != nil {
		t.Skip("skip: db not reachable")
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	for _, table := range []string{"messages", "members", "chat_rooms", "users"} {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("cleanup %s: %v", table, err)
		}
	}
	return New(gdb), gdb
}

func TestUserUpsertFlow(t *testing.T) {
	s, _ := testStore(t)

	if u, err := s.GetUserByEmail("a@x.com"); err != nil || u != nil {
		t.Fatalf("missing user should be (nil, nil), got (%+v, %v)", u, err)
	}

	created, err := s.CreateUser("alice", "a@x.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if created.UserType != models.UserTypeUser {
		t.Errorf("default user type = %q, want user", created.UserType)
	}

	found, err := s.GetUserByEmail("a@x.com")
	if err != nil || found == nil || found.ID != created.ID {
		t.Fatalf("lookup after create = (%+v, %v), want id %d", found, err, created.ID)
	}

	before := found.LastSeenAt
	time.Sleep(10 * time.Millisecond)
	bumped, err := s.UpdateLastSeen(found.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bumped.LastSeenAt.After(before) {
		t.Error("UpdateLastSeen did not advance last_seen_at")
	}

	var count int64
	s.db.Model(&models.User{}).Where("email = ?", "a@x.com").Count(&count)
	if count != 1 {
		t.Errorf("user rows for a@x.com = %d, want 1 (no duplicates)", count)
	}
}

func TestCreateRoomWithMembers(t *testing.T) {
	s, _ := testStore(t)

	admin1, _ := s.CreateUser("root", "root@x.com", models.UserTypeAdmin)
	admin2, _ := s.CreateUser("ops", "ops@x.com", models.UserTypeAdmin)
	owner, _ := s.CreateUser("alice", "a@x.com", "")

	room, err := s.CreateRoomWithMembers(owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if room.OwnerID != owner.ID || room.RoomType != models.RoomTypeSupport {
		t.Errorf("unexpected room %+v", room)
	}

	var members []models.Member
	if err := s.db.Where("room_id = ?", room.ID).Find(&members).Error; err != nil {
		t.Fatal(err)
	}
	roles := map[uint]string{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	if roles[owner.ID] != models.MemberRoleMember {
		t.Errorf("owner role = %q, want member", roles[owner.ID])
	}
	if roles[admin1.ID] != models.MemberRoleAdmin || roles[admin2.ID] != models.MemberRoleAdmin {
		t.Errorf("admins should be admin-role members, got %v", roles)
	}
	if len(members) != 3 {
		t.Errorf("member rows = %d, want 3", len(members))
	}

	// The in-transaction re-check makes a second create return the same room.
	again, err := s.CreateRoomWithMembers(owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != room.ID {
		t.Errorf("second create produced room %d, want %d", again.ID, room.ID)
	}
}

func TestCreateRoomWithMembers_RollsBackOnFailure(t *testing.T) {
	s, gdb := testStore(t)

	// The owner lookup inside the transaction fails for an id that does not
	// exist, so the whole creation must roll back: no room with zero members.
	if _, err := s.CreateRoomWithMembers(424242); err == nil {
		t.Fatal("creating a room for a missing owner should fail")
	}

	var rooms int64
	gdb.Model(&models.ChatRoom{}).Where("owner_id = ?", 424242).Count(&rooms)
	if rooms != 0 {
		t.Errorf("partial room row survived a failed creation: %d", rooms)
	}
	var members int64
	gdb.Model(&models.Member{}).Where("user_id = ?", 424242).Count(&members)
	if members != 0 {
		t.Errorf("partial member row survived a failed creation: %d", members)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s, _ := testStore(t)

	owner, _ := s.CreateUser("alice", "a@x.com", "")
	room, err := s.CreateRoomWithMembers(owner.ID)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := s.IsMember(owner.ID, room.ID)
	if err != nil || !ok {
		t.Fatalf("owner should be a member, got (%v, %v)", ok, err)
	}
	if ok, _ := s.IsMember(owner.ID, room.ID+1); ok {
		t.Error("membership must not leak across rooms")
	}

	m1, err := s.InsertMessage(room.ID, owner.ID, "first")
	if err != nil {
		t.Fatal(err)
	}
	m2, _ := s.InsertMessage(room.ID, owner.ID, "second")

	full, err := s.GetMessageWithSender(m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if full.SenderUsername != "alice" || full.SenderRole != models.UserTypeUser {
		t.Errorf("sender fields not attached: %+v", full)
	}

	list, err := s.ListMessages(room.ID, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != m1.ID || list[1].ID != m2.ID {
		t.Errorf("messages out of insertion order: %+v", list)
	}

	// Soft-deleted messages disappear from listings but stay in the table.
	if err := s.SoftDeleteMessage(m1.ID, owner.ID); err != nil {
		t.Fatal(err)
	}
	list, _ = s.ListMessages(room.ID, 50, 0)
	if len(list) != 1 || list[0].ID != m2.ID {
		t.Errorf("soft-deleted message still listed: %+v", list)
	}
	var raw models.Message
	if err := s.db.First(&raw, m1.ID).Error; err != nil {
		t.Fatal("soft-deleted row must remain in the table")
	}
	if raw.DeletedAt == nil || raw.DeletedBy == nil || *raw.DeletedBy != owner.ID {
		t.Errorf("soft delete metadata missing: %+v", raw)
	}
}

func TestTouchRoomActivityOrdersAdminList(t *testing.T) {
	s, _ := testStore(t)

	u1, _ := s.CreateUser("alice", "a@x.com", "")
	u2, _ := s.CreateUser("bob", "b@x.com", "")
	r1, _ := s.CreateRoomWithMembers(u1.ID)
	r2, _ := s.CreateRoomWithMembers(u2.ID)

	if _, err := s.InsertMessage(r1.ID, u1.ID, "hello"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := s.TouchRoomActivity(r1.ID); err != nil {
		t.Fatal(err)
	}

	summaries, err := s.ListRoomsForAdmin()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
	if summaries[0].ID != r1.ID {
		t.Errorf("most recently active room should sort first, got %d", summaries[0].ID)
	}

	byID := map[uint]RoomSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	if byID[r1.ID].MessageCount != 1 || byID[r2.ID].MessageCount != 0 {
		t.Errorf("message counts wrong: %+v", byID)
	}
	if byID[r1.ID].LastMessage == nil || byID[r1.ID].LastMessage.Content != "hello" {
		t.Errorf("last message missing for active room: %+v", byID[r1.ID].LastMessage)
	}
	if byID[r2.ID].LastMessage != nil {
		t.Error("idle room should have no last message")
	}
	if byID[r1.ID].Owner.Username != "alice" {
		t.Errorf("owner not joined: %+v", byID[r1.ID].Owner)
	}
	if byID[r1.ID].MemberCount != 1 {
		t.Errorf("member count = %d, want 1", byID[r1.ID].MemberCount)
	}
}

func TestUpdateMemberLastSeen(t *testing.T) {
	s, gdb := testStore(t)

	owner, _ := s.CreateUser("alice", "a@x.com", "")
	room, _ := s.CreateRoomWithMembers(owner.ID)
	msg, _ := s.InsertMessage(room.ID, owner.ID, "hi")

	if err := s.UpdateMemberLastSeen(owner.ID, room.ID, msg.ID); err != nil {
		t.Fatal(err)
	}
	var member models.Member
	if err := gdb.Where("user_id = ? AND room_id = ?", owner.ID, room.ID).First(&member).Error; err != nil {
		t.Fatal(err)
	}
	if member.LastSeenMessageID == nil || *member.LastSeenMessageID != msg.ID {
		t.Errorf("last_seen_message_id = %v, want %d", member.LastSeenMessageID, msg.ID)
	}
}
