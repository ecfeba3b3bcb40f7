package store

import (
	"SynapseCode/backend/go/internal/models"
	"sort"
	"strings"
)

// Subtree returns the id of rootID and of every folder below it.
func Subtree(folders []*models.Folder, rootID string) map[string]bool {
	children := make(map[string][]string, len(folders))
	for _, f := range folders {
		if f.ParentID != nil {
			children[*f.ParentID] = append(children[*f.ParentID], f.ID)
		}
	}
	ids := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if !ids[child] {
				ids[child] = true
				queue = append(queue, child)
			}
		}
	}
	return ids
}

// WouldCycle reports whether making newParentID the parent of folderID would
// make the folder its own ancestor.
func WouldCycle(folders []*models.Folder, folderID, newParentID string) bool {
	if folderID == newParentID {
		return true
	}
	byID := indexFolders(folders)
	seen := make(map[string]bool)
	for cur := newParentID; cur != ""; {
		if cur == folderID {
			return true
		}
		if seen[cur] {
			// already cyclic data; refuse to make it worse
			return true
		}
		seen[cur] = true
		f, ok := byID[cur]
		if !ok || f.ParentID == nil {
			return false
		}
		cur = *f.ParentID
	}
	return false
}

// FolderPath returns the slash separated path of a folder, e.g. "lib/util".
func FolderPath(folders []*models.Folder, folderID string) string {
	byID := indexFolders(folders)
	var parts []string
	seen := make(map[string]bool)
	for cur := folderID; cur != "" && !seen[cur]; {
		seen[cur] = true
		f, ok := byID[cur]
		if !ok {
			break
		}
		parts = append(parts, f.Name)
		if f.ParentID == nil {
			break
		}
		cur = *f.ParentID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// FilePath returns the effective path of a file, e.g. "lib/main".
func FilePath(folders []*models.Folder, file *models.File) string {
	if file.FolderID == nil {
		return file.Name
	}
	dir := FolderPath(folders, *file.FolderID)
	if dir == "" {
		return file.Name
	}
	return dir + "/" + file.Name
}

func indexFolders(folders []*models.Folder) map[string]*models.Folder {
	byID := make(map[string]*models.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	return byID
}

func sortFolders(folders []*models.Folder) {
	sort.Slice(folders, func(i, j int) bool {
		if !folders[i].CreatedAt.Equal(folders[j].CreatedAt) {
			return folders[i].CreatedAt.Before(folders[j].CreatedAt)
		}
		return folders[i].ID < folders[j].ID
	})
}

func sortFiles(files []*models.File) {
	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.Before(files[j].CreatedAt)
		}
		return files[i].ID < files[j].ID
	})
}

func sortMembers(members []*models.Member) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].UserID < members[j].UserID
	})
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
