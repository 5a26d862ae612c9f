package mcptool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type listFoldersInput struct {
	Cluster   string `json:"cluster" jsonschema:"cluster to list folders on"`
	ParentUID string `json:"parentUid,omitempty" jsonschema:"list children of this folder, top level when omitted"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum results"`
}

type listFoldersOutput struct {
	Folders []Dashboard `json:"folders"`
	Count   int         `json:"count"`
}

type getFolderInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the folder lives on"`
	UID     string `json:"uid" jsonschema:"folder uid"`
}

type folderOutput struct {
	Folder Dashboard `json:"folder"`
}

type createFolderInput struct {
	Cluster   string `json:"cluster" jsonschema:"cluster to create on"`
	Title     string `json:"title" jsonschema:"folder title"`
	UID       string `json:"uid,omitempty" jsonschema:"explicit folder uid, generated when omitted"`
	ParentUID string `json:"parentUid,omitempty" jsonschema:"parent folder uid, top level when omitted"`
}

type updateFolderInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the folder lives on"`
	UID     string `json:"uid" jsonschema:"folder uid"`
	Title   string `json:"title" jsonschema:"new folder title"`
}

type deleteFolderInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the folder lives on"`
	UID     string `json:"uid" jsonschema:"folder uid"`
}

func (s *Server) registerFolderTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_folders",
		Description: "List folders, optionally under a parent folder.",
	}, instrument(s, "list_folders", func(ctx context.Context, in listFoldersInput) (listFoldersOutput, error) {
		folders, err := s.folders.List(ctx, in.Cluster, in.ParentUID, in.Limit)
		if err != nil {
			return listFoldersOutput{}, err
		}
		views := toViews(folders)
		return listFoldersOutput{Folders: views, Count: len(views)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_folder",
		Description: "Read one folder.",
	}, instrument(s, "get_folder", func(ctx context.Context, in getFolderInput) (folderOutput, error) {
		res, err := s.folders.Get(ctx, in.Cluster, in.UID)
		if err != nil {
			return folderOutput{}, err
		}
		return folderOutput{Folder: toView(res, false)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "create_folder",
		Description: "Create a folder.",
	}, instrument(s, "create_folder", func(ctx context.Context, in createFolderInput) (folderOutput, error) {
		res, err := s.folders.Create(ctx, in.Cluster, in.Title, in.UID, in.ParentUID)
		if err != nil {
			return folderOutput{}, err
		}
		return folderOutput{Folder: toView(res, false)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "update_folder",
		Description: "Rename a folder.",
	}, instrument(s, "update_folder", func(ctx context.Context, in updateFolderInput) (folderOutput, error) {
		res, err := s.folders.Update(ctx, in.Cluster, in.UID, in.Title)
		if err != nil {
			return folderOutput{}, err
		}
		return folderOutput{Folder: toView(res, false)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_folder",
		Description: "Delete a folder.",
	}, instrument(s, "delete_folder", func(ctx context.Context, in deleteFolderInput) (deleteOutput, error) {
		if err := s.folders.Delete(ctx, in.Cluster, in.UID); err != nil {
			return deleteOutput{}, err
		}
		return deleteOutput{Deleted: true}, nil
	}))
}
