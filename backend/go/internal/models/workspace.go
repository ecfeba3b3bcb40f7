package models

import "time"

// Visibility 定义了工作区的可见性。
type Visibility string

const (
	VisibilityPublic  Visibility = "public"  // 任何登录用户都可以只读访问
	VisibilityPrivate Visibility = "private" // 仅成员可以访问
)

// Valid 判断可见性取值是否合法。
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Role 定义了成员在工作区中的角色。
// 非成员（包括公开工作区的访客）没有角色，只有只读权限。
type Role string

const (
	RoleOwner       Role = "owner"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "" // 不是成员
)

// CanWrite 判断该角色是否可以修改文件树和文件内容。
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleContributor
}

// AIAgentID 是 AI 助手在聊天中使用的作者 ID。
const AIAgentID = "AI_AGENT"

// Workspace 是协作的顶层单元，包含文件夹、文件和成员。
type Workspace struct {
	ID         string     `bson:"_id" json:"id"`
	Name       string     `bson:"name" json:"name"`
	Visibility Visibility `bson:"visibility" json:"visibility"`
	OwnerID    string     `bson:"owner_id" json:"ownerId"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	Revision   int64      `bson:"revision" json:"revision"`
}

// WorkspaceSummary 是用户仪表盘中展示的工作区条目，带有当前用户的角色。
type WorkspaceSummary struct {
	Workspace
	Role Role `json:"role"`
}

// Member 代表一个用户在某个工作区中的成员身份。
// 每个 (WorkspaceID, UserID) 组合最多只有一条记录。
type Member struct {
	WorkspaceID string    `bson:"workspace_id" json:"workspaceId"`
	UserID      string    `bson:"user_id" json:"userId"`
	Role        Role      `bson:"role" json:"role"`
	DisplayName string    `bson:"display_name" json:"displayName"`
	AvatarRef   string    `bson:"avatar_ref" json:"avatarRef"`
	JoinedAt    time.Time `bson:"joined_at" json:"joinedAt"`
	Revision    int64     `bson:"revision" json:"revision"`
}

// Folder 是工作区文件树中的目录节点。ParentID 为 nil 表示顶层目录。
type Folder struct {
	ID          string    `bson:"_id" json:"id"`
	WorkspaceID string    `bson:"workspace_id" json:"workspaceId"`
	Name        string    `bson:"name" json:"name"`
	ParentID    *string   `bson:"parent_id" json:"parentId"`
	CreatedBy   string    `bson:"created_by" json:"createdBy"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
	Revision    int64     `bson:"revision" json:"revision"`
}

// File 是工作区中的代码文件。FolderID 为 nil 表示位于顶层。
type File struct {
	ID          string    `bson:"_id" json:"id"`
	WorkspaceID string    `bson:"workspace_id" json:"workspaceId"`
	Name        string    `bson:"name" json:"name"`
	FolderID    *string   `bson:"folder_id" json:"folderId"`
	Content     string    `bson:"content" json:"content"`
	Language    string    `bson:"language" json:"language"`
	CreatedBy   string    `bson:"created_by" json:"createdBy"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
	Revision    int64     `bson:"revision" json:"revision"`
}

// Invite 是一条待处理的邀请，挂在被邀请用户名下。接受或拒绝后即被删除。
type Invite struct {
	TargetUserID  string    `bson:"target_user_id" json:"targetUserId"`
	WorkspaceID   string    `bson:"workspace_id" json:"workspaceId"`
	WorkspaceName string    `bson:"workspace_name" json:"workspaceName"`
	InvitedBy     string    `bson:"invited_by" json:"invitedBy"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	Revision      int64     `bson:"revision" json:"revision"`
}

// ChatMessage 是工作区聊天中的一条消息，只追加不修改。
type ChatMessage struct {
	ID          string    `bson:"_id" json:"id"`
	WorkspaceID string    `bson:"workspace_id" json:"workspaceId"`
	AuthorID    string    `bson:"author_id" json:"authorId"`
	AuthorName  string    `bson:"author_name" json:"authorName"`
	AvatarRef   string    `bson:"avatar_ref" json:"avatarRef"`
	Text        string    `bson:"text" json:"text"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	Revision    int64     `bson:"revision" json:"revision"`
}

// CascadeResult 记录一次级联删除实际移除的实体。
type CascadeResult struct {
	Folders  []*Folder      `json:"folders"`
	Files    []*File        `json:"files"`
	Members  []*Member      `json:"members,omitempty"`
	Invites  []*Invite      `json:"invites,omitempty"`
	Messages []*ChatMessage `json:"messages,omitempty"`
	// Revision 是删除操作本身被分配的修订号。
	Revision int64 `json:"revision"`
}

// WorkspaceSnapshot 是某个工作区在某一时刻的完整状态。
type WorkspaceSnapshot struct {
	Workspace *Workspace     `json:"workspace"`
	Members   []*Member      `json:"members"`
	Folders   []*Folder      `json:"folders"`
	Files     []*File        `json:"files"`
	Messages  []*ChatMessage `json:"messages"`
}

// SetRevision 在存储层打上修订号（包括删除时的墓碑修订号）。
func (w *Workspace) SetRevision(rev int64) { w.Revision = rev }

func (m *Member) SetRevision(rev int64) { m.Revision = rev }

func (f *Folder) SetRevision(rev int64) { f.Revision = rev }

func (f *File) SetRevision(rev int64) { f.Revision = rev }

func (i *Invite) SetRevision(rev int64) { i.Revision = rev }

func (c *ChatMessage) SetRevision(rev int64) { c.Revision = rev }
