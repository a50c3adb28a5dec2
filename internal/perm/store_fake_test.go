// ABOUTME: In-memory fake perm.Store plus a fixture builder for engine tests.
// ABOUTME: No database — the resolver is exercised purely through the Store interface.
package perm_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
)

type fakeStore struct {
	workspaces map[uuid.UUID]perm.WorkspaceRef
	projects   map[uuid.UUID]perm.ProjectRef
	folders    map[uuid.UUID]perm.FolderRef

	roles        map[string]perm.AccountRole // accountID/userID
	wsGrants     map[string]perm.Level       // workspaceID/userID
	projGrants   map[string]perm.Level       // projectID/userID
	folderGrants map[string]perm.Level       // folderID/userID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workspaces:   make(map[uuid.UUID]perm.WorkspaceRef),
		projects:     make(map[uuid.UUID]perm.ProjectRef),
		folders:      make(map[uuid.UUID]perm.FolderRef),
		roles:        make(map[string]perm.AccountRole),
		wsGrants:     make(map[string]perm.Level),
		projGrants:   make(map[string]perm.Level),
		folderGrants: make(map[string]perm.Level),
	}
}

func pairKey(a, b uuid.UUID) string { return a.String() + "/" + b.String() }

func (f *fakeStore) GetWorkspaceRef(_ context.Context, id uuid.UUID) (*perm.WorkspaceRef, error) {
	if ws, ok := f.workspaces[id]; ok {
		return &ws, nil
	}
	return nil, nil
}

func (f *fakeStore) GetProjectRef(_ context.Context, id uuid.UUID) (*perm.ProjectRef, error) {
	if p, ok := f.projects[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeStore) GetFolderRef(_ context.Context, id uuid.UUID) (*perm.FolderRef, error) {
	if fl, ok := f.folders[id]; ok {
		return &fl, nil
	}
	return nil, nil
}

func (f *fakeStore) GetAccountRole(_ context.Context, accountID, userID uuid.UUID) (*perm.AccountRole, error) {
	if role, ok := f.roles[pairKey(accountID, userID)]; ok {
		return &role, nil
	}
	return nil, nil
}

func (f *fakeStore) GetWorkspaceGrant(_ context.Context, workspaceID, userID uuid.UUID) (*perm.Level, error) {
	if lvl, ok := f.wsGrants[pairKey(workspaceID, userID)]; ok {
		return &lvl, nil
	}
	return nil, nil
}

func (f *fakeStore) GetProjectGrant(_ context.Context, projectID, userID uuid.UUID) (*perm.Level, error) {
	if lvl, ok := f.projGrants[pairKey(projectID, userID)]; ok {
		return &lvl, nil
	}
	return nil, nil
}

func (f *fakeStore) GetFolderGrant(_ context.Context, folderID, userID uuid.UUID) (*perm.Level, error) {
	if lvl, ok := f.folderGrants[pairKey(folderID, userID)]; ok {
		return &lvl, nil
	}
	return nil, nil
}

func (f *fakeStore) CountUserProjectGrants(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	suffix := "/" + userID.String()
	for k := range f.projGrants {
		if len(k) > len(suffix) && k[len(k)-len(suffix):] == suffix {
			n++
		}
	}
	return n, nil
}

// fixture is one account with a workspace → project → folder chain and a
// fresh user per call site.
type fixture struct {
	store    *fakeStore
	resolver *perm.Resolver

	account   uuid.UUID
	workspace uuid.UUID
	project   uuid.UUID
	folder    uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		store:     newFakeStore(),
		account:   uuid.New(),
		workspace: uuid.New(),
		project:   uuid.New(),
		folder:    uuid.New(),
	}
	f.resolver = perm.NewResolver(f.store)
	f.store.workspaces[f.workspace] = perm.WorkspaceRef{ID: f.workspace, AccountID: f.account}
	f.store.projects[f.project] = perm.ProjectRef{
		ID: f.project, WorkspaceID: f.workspace, AccountID: f.account,
	}
	f.store.folders[f.folder] = perm.FolderRef{
		ID: f.folder, ProjectID: f.project, AccountID: f.account,
	}
	return f
}

func (f *fixture) user(role perm.AccountRole) uuid.UUID {
	id := uuid.New()
	if role != "" {
		f.store.roles[pairKey(f.account, id)] = role
	}
	return id
}

func (f *fixture) restrictProject() {
	p := f.store.projects[f.project]
	p.IsRestricted = true
	f.store.projects[f.project] = p
}

func (f *fixture) restrictFolder() {
	fl := f.store.folders[f.folder]
	fl.IsRestricted = true
	f.store.folders[f.folder] = fl
}
