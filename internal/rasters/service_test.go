package rasters_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/apiclient/apitest"
	"github.com/temirov/geodetect/internal/rasters"
)

const (
	tiffHeaderContentConstant              = "II*\x00\x08\x00\x00\x00raster"
	geoJSONContentConstant                 = `{"type":"FeatureCollection","features":[]}`
	uploadStartPathConstant                = "rasters/upload/file/"
	commitOperationTypeConstant            = "raster_commit"
	notImageLogMessageConstant             = "raster content is not a recognized image format"
	detectionAreaNotJSONLogMessageConstant = "detection area content is not recognized as JSON or GeoJSON"
	folderIdentifierConstant               = "123456789"
)

func writeFile(testInstance *testing.T, name string, content string) string {
	testInstance.Helper()
	filePath := filepath.Join(testInstance.TempDir(), name)
	require.NoError(testInstance, os.WriteFile(filePath, []byte(content), 0o600))
	return filePath
}

func registerRasterList(server *apitest.Server, folderID string, pages ...[]map[string]any) {
	basePath := "rasters/?"
	if len(folderID) > 0 {
		basePath += "folder=" + folderID + "&"
	}
	for pageIndex, pageRecords := range pages {
		var next any
		if pageIndex < len(pages)-1 {
			next = server.APIURL(fmt.Sprintf("%spage_number=%d", basePath, pageIndex+2))
		}
		server.RegisterAPI(http.MethodGet, fmt.Sprintf("%spage_number=%d", basePath, pageIndex+1), apitest.Response{JSON: map[string]any{
			"count":   len(pageRecords),
			"next":    next,
			"results": pageRecords,
		}})
	}
}

func registerAccountRasters(server *apitest.Server) {
	registerRasterList(server, "",
		[]map[string]any{
			{"id": "40", "status": "ready", "name": "raster1", "identity_key": "4040"},
			{"id": "41", "status": "ready", "name": "raster2", "identity_key": "4141"},
		},
		[]map[string]any{
			{"id": "42", "status": "ready", "name": "raster3", "identity_key": "4242"},
			{"id": "43", "status": "ready", "name": "raster4", "identity_key": "4343"},
		},
	)
}

func registerUploadFlow(server *apitest.Server, rasterID any) {
	rasterIdentifier := fmt.Sprint(rasterID)
	operationID := "commit-" + rasterIdentifier
	server.RegisterAPI(http.MethodPost, uploadStartPathConstant, apitest.Response{JSON: map[string]any{
		"upload_url": server.StorageURL("uploads/" + rasterIdentifier),
		"raster_id":  rasterID,
	}})
	server.RegisterStorage(http.MethodPut, "uploads/"+rasterIdentifier, apitest.Response{})
	server.RegisterAPI(http.MethodPost, "rasters/"+rasterIdentifier+"/commit/", apitest.Response{JSON: apitest.OperationHandle(operationID)})
	server.RegisterOperation(operationID, commitOperationTypeConstant, "running", "success")
}

func TestServiceListCollectsAllPages(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name     string
		folderID string
	}{
		{name: "account", folderID: ""},
		{name: "folder", folderID: "5"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			registerRasterList(server, testCase.folderID,
				[]map[string]any{{"id": "40", "name": "raster1"}, {"id": "41", "name": "raster2"}},
				[]map[string]any{{"id": 42, "name": "raster3"}},
			)
			service := rasters.NewService(zap.NewNop(), server.NewClient(subTest, zap.NewNop()))

			listedRasters, listError := service.List(context.Background(), testCase.folderID)
			require.NoError(subTest, listError)
			require.Len(subTest, listedRasters, 3)
			require.Equal(subTest, "raster1", listedRasters[0].Name)
			require.Equal(subTest, "raster2", listedRasters[1].Name)
			require.Equal(subTest, apiclient.Identifier("42"), listedRasters[2].ID)
		})
	}
}

func TestServiceUploadRunsPresignedFlow(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	registerUploadFlow(server, 42)
	service := rasters.NewService(zap.NewNop(), server.NewClient(testInstance, zap.NewNop()))

	rasterPath := writeFile(testInstance, "scene.tif", tiffHeaderContentConstant)
	rasterID, uploadError := service.Upload(context.Background(), rasters.UploadRequest{
		FilePath:   rasterPath,
		FolderID:   "0",
		CapturedAt: "2020-01-10T12:34:56.789Z",
	})
	require.NoError(testInstance, uploadError)
	require.Equal(testInstance, apiclient.Identifier("42"), rasterID)

	startRequests := server.APIRequests(http.MethodPost, uploadStartPathConstant)
	require.Len(testInstance, startRequests, 1)
	var startPayload map[string]any
	startRequests[0].DecodeJSON(testInstance, &startPayload)
	require.Equal(testInstance, map[string]any{
		"name":          "scene.tif",
		"folder_id":     "0",
		"captured_at":   "2020-01-10T12:34:56.789Z",
		"multispectral": false,
	}, startPayload)

	storageRequests := server.StorageRequests(http.MethodPut, "uploads/42")
	require.Len(testInstance, storageRequests, 1)
	require.Equal(testInstance, tiffHeaderContentConstant, string(storageRequests[0].Body))
	require.Empty(testInstance, storageRequests[0].Header.Get("X-Api-Key"))

	require.Len(testInstance, server.APIRequests(http.MethodPost, "rasters/42/commit/"), 1)
	require.Len(testInstance, server.APIRequests(http.MethodGet, "operations/commit-42/"), 2)
}

func TestServiceUploadCloneDetection(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name              string
		request           rasters.UploadRequest
		registerRoutes    func(*apitest.Server)
		expectUpload      bool
		expectedDuplicate apiclient.Identifier
		expectedField     string
		expectedMessage   string
	}{
		{
			name:            "invalid_scope",
			request:         rasters.UploadRequest{Name: "c", CheckScope: "spam"},
			registerRoutes:  func(*apitest.Server) {},
			expectedField:   "check_existing",
			expectedMessage: "spam",
		},
		{
			name:            "folder_scope_requires_folder",
			request:         rasters.UploadRequest{Name: "c", IdentityKey: "41", CheckScope: rasters.CloneCheckScopeFolder},
			registerRoutes:  func(*apitest.Server) {},
			expectedField:   "folder_id",
			expectedMessage: "folder",
		},
		{
			name:              "account_duplicate",
			request:           rasters.UploadRequest{Name: "test 2", IdentityKey: "4141"},
			registerRoutes:    registerAccountRasters,
			expectedDuplicate: "41",
		},
		{
			name:    "account_unique",
			request: rasters.UploadRequest{Name: "test 3", IdentityKey: "99999"},
			registerRoutes: func(server *apitest.Server) {
				registerAccountRasters(server)
				registerUploadFlow(server, "77")
			},
			expectUpload: true,
		},
		{
			name:    "folder_unique",
			request: rasters.UploadRequest{Name: "test 3", IdentityKey: "41", CheckScope: rasters.CloneCheckScopeFolder, FolderID: folderIdentifierConstant},
			registerRoutes: func(server *apitest.Server) {
				registerRasterList(server, folderIdentifierConstant, []map[string]any{{"id": "spam", "identity_key": "foo"}})
				registerUploadFlow(server, "77")
			},
			expectUpload: true,
		},
		{
			name:    "folder_duplicate",
			request: rasters.UploadRequest{Name: "test 2", IdentityKey: "foo", CheckScope: rasters.CloneCheckScopeFolder, FolderID: folderIdentifierConstant},
			registerRoutes: func(server *apitest.Server) {
				registerRasterList(server, folderIdentifierConstant, []map[string]any{{"id": "spam", "identity_key": "foo"}})
			},
			expectedDuplicate: "spam",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			testCase.registerRoutes(server)
			service := rasters.NewService(zap.NewNop(), server.NewClient(subTest, zap.NewNop()))

			request := testCase.request
			request.FilePath = writeFile(subTest, "scene.tif", tiffHeaderContentConstant)

			rasterID, uploadError := service.Upload(context.Background(), request)
			if testCase.expectUpload {
				require.NoError(subTest, uploadError)
				require.Equal(subTest, apiclient.Identifier("77"), rasterID)

				var startPayload map[string]any
				startRequests := server.APIRequests(http.MethodPost, uploadStartPathConstant)
				require.Len(subTest, startRequests, 1)
				startRequests[0].DecodeJSON(subTest, &startPayload)
				require.Equal(subTest, request.IdentityKey, startPayload["identity_key"])
				return
			}

			require.Error(subTest, uploadError)
			require.Empty(subTest, server.APIRequests(http.MethodPost, uploadStartPathConstant))

			if !testCase.expectedDuplicate.IsEmpty() {
				var duplicateError rasters.DuplicateRasterError
				require.ErrorAs(subTest, uploadError, &duplicateError)
				require.Equal(subTest, testCase.expectedDuplicate, duplicateError.ExistingRasterID)
				require.Regexp(subTest, "already uploaded.*"+testCase.expectedDuplicate.String(), uploadError.Error())
				return
			}

			var inputError apiclient.InvalidInputError
			require.ErrorAs(subTest, uploadError, &inputError)
			require.Equal(subTest, testCase.expectedField, inputError.FieldName)
			require.Contains(subTest, inputError.Error(), testCase.expectedMessage)
		})
	}
}

func TestServiceUploadRejectsUnusableFiles(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	service := rasters.NewService(zap.NewNop(), server.NewClient(testInstance, zap.NewNop()))

	_, missingError := service.Upload(context.Background(), rasters.UploadRequest{FilePath: filepath.Join(testInstance.TempDir(), "absent.tif")})
	require.ErrorIs(testInstance, missingError, os.ErrNotExist)

	_, directoryError := service.Upload(context.Background(), rasters.UploadRequest{FilePath: testInstance.TempDir()})
	var inputError apiclient.InvalidInputError
	require.ErrorAs(testInstance, directoryError, &inputError)

	_, timestampError := service.Upload(context.Background(), rasters.UploadRequest{
		FilePath:   writeFile(testInstance, "scene.tif", tiffHeaderContentConstant),
		CapturedAt: "yesterday",
	})
	require.ErrorAs(testInstance, timestampError, &inputError)
	require.Equal(testInstance, "captured_at", inputError.FieldName)
}

func TestServiceUploadWarnsAboutNonImageContent(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name         string
		fileName     string
		content      string
		expectWarned bool
	}{
		{name: "tiff", fileName: "scene.tif", content: tiffHeaderContentConstant, expectWarned: false},
		{name: "text", fileName: "notes.txt", content: "not an image", expectWarned: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			registerUploadFlow(server, "9")

			observedCore, observedLogs := observer.New(zapcore.InfoLevel)
			service := rasters.NewService(zap.New(observedCore), server.NewClient(subTest, zap.NewNop()))

			_, uploadError := service.Upload(context.Background(), rasters.UploadRequest{FilePath: writeFile(subTest, testCase.fileName, testCase.content)})
			require.NoError(subTest, uploadError)

			warnings := observedLogs.FilterMessage(notImageLogMessageConstant).All()
			if testCase.expectWarned {
				require.Len(subTest, warnings, 1)
				require.Equal(subTest, zapcore.WarnLevel, warnings[0].Level)
				return
			}
			require.Empty(subTest, warnings)
		})
	}
}

func registerDetectionAreaFlow(server *apitest.Server, startResponse map[string]any) {
	server.RegisterAPI(http.MethodPost, "rasters/1/detection_areas/upload/file/", apitest.Response{JSON: startResponse})
	server.RegisterStorage(http.MethodPut, "areas/42", apitest.Response{})
	server.RegisterAPI(http.MethodPost, "rasters/1/detection_areas/upload/42/commit/", apitest.Response{JSON: apitest.OperationHandle("areas-op")})
	server.RegisterOperation("areas-op", "detection_areas_upload", "success")
}

func TestServiceSetDetectionAreasFromFile(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name         string
		fileName     string
		content      string
		expectWarned bool
	}{
		{name: "geojson", fileName: "areas.geojson", content: geoJSONContentConstant, expectWarned: false},
		{name: "leading_whitespace", fileName: "areas.geojson", content: "\n  " + geoJSONContentConstant, expectWarned: false},
		{name: "empty", fileName: "empty.geojson", content: "", expectWarned: true},
		{name: "byte_order_mark", fileName: "bom.geojson", content: "\ufeff" + geoJSONContentConstant, expectWarned: true},
		{name: "not_json", fileName: "scene.tif", content: tiffHeaderContentConstant, expectWarned: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			registerDetectionAreaFlow(server, map[string]any{
				"upload_url": server.StorageURL("areas/42"),
				"upload_id":  42,
			})

			observedCore, observedLogs := observer.New(zapcore.InfoLevel)
			service := rasters.NewService(zap.New(observedCore), server.NewClient(subTest, zap.NewNop()))

			areaPath := writeFile(subTest, testCase.fileName, testCase.content)
			require.NoError(subTest, service.SetDetectionAreasFromFile(context.Background(), "1", areaPath))

			storageRequests := server.StorageRequests(http.MethodPut, "areas/42")
			require.Len(subTest, storageRequests, 1)
			require.Equal(subTest, testCase.content, string(storageRequests[0].Body))
			require.Len(subTest, server.APIRequests(http.MethodPost, "rasters/1/detection_areas/upload/42/commit/"), 1)

			warnings := observedLogs.FilterMessage(detectionAreaNotJSONLogMessageConstant).All()
			if testCase.expectWarned {
				require.Len(subTest, warnings, 1)
				require.Equal(subTest, zapcore.WarnLevel, warnings[0].Level)
				return
			}
			require.Empty(subTest, warnings)
		})
	}
}

func TestServiceSetDetectionAreasRequiresUploadIdentifier(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	registerDetectionAreaFlow(server, map[string]any{"upload_url": server.StorageURL("areas/42")})
	service := rasters.NewService(zap.NewNop(), server.NewClient(testInstance, zap.NewNop()))

	setError := service.SetDetectionAreasFromFile(context.Background(), "1", writeFile(testInstance, "areas.geojson", geoJSONContentConstant))

	var decodingError apiclient.ResponseDecodingError
	require.ErrorAs(testInstance, setError, &decodingError)
	require.Contains(testInstance, decodingError.Error(), "upload_id missing")
	require.Empty(testInstance, server.StorageRequests(http.MethodPut, "areas/42"))
	require.Empty(testInstance, server.APIRequests(http.MethodPost, "rasters/1/detection_areas/upload/commit/"))
}

func TestServiceWaitUntilReady(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name          string
		statuses      []string
		expectFailure bool
	}{
		{name: "becomes_ready", statuses: []string{"processing", "processing", "ready"}},
		{name: "fails", statuses: []string{"processing", "failed"}, expectFailure: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			server := apitest.NewServer(subTest)
			for _, status := range testCase.statuses {
				server.RegisterAPI(http.MethodGet, "rasters/42/", apitest.Response{JSON: map[string]any{"id": 42, "name": "raster1", "status": status}})
			}
			service := rasters.NewService(zap.NewNop(), server.NewClient(subTest, zap.NewNop()))

			raster, waitError := service.WaitUntilReady(context.Background(), "42")
			require.Len(subTest, server.APIRequests(http.MethodGet, "rasters/42/"), len(testCase.statuses))
			if testCase.expectFailure {
				var failedError rasters.RasterFailedError
				require.ErrorAs(subTest, waitError, &failedError)
				require.Equal(subTest, apiclient.Identifier("42"), failedError.RasterID)
				return
			}
			require.NoError(subTest, waitError)
			require.Equal(subTest, rasters.StatusReady, raster.Status)
			require.Equal(subTest, "raster1", raster.Name)
		})
	}
}

func TestServiceEditSendsOnlyProvidedFields(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	server.RegisterAPI(http.MethodPut, "rasters/42/", apitest.Response{StatusCode: http.StatusNoContent})
	service := rasters.NewService(zap.NewNop(), server.NewClient(testInstance, zap.NewNop()))

	newName := "renamed"
	require.NoError(testInstance, service.Edit(context.Background(), "42", rasters.EditRequest{Name: &newName}))

	editRequests := server.APIRequests(http.MethodPut, "rasters/42/")
	require.Len(testInstance, editRequests, 1)
	require.JSONEq(testInstance, `{"name":"renamed"}`, string(editRequests[0].Body))

	var inputError apiclient.InvalidInputError
	require.ErrorAs(testInstance, service.Edit(context.Background(), "42", rasters.EditRequest{}), &inputError)

	invalidTimestamp := "tomorrow"
	require.ErrorAs(testInstance, service.Edit(context.Background(), "42", rasters.EditRequest{CapturedAt: &invalidTimestamp}), &inputError)
	require.Len(testInstance, server.APIRequests(http.MethodPut, "rasters/42/"), 1)
}

func TestServiceGetAndDelete(testInstance *testing.T) {
	testInstance.Parallel()

	server := apitest.NewServer(testInstance)
	server.RegisterAPI(http.MethodGet, "rasters/42/", apitest.Response{JSON: map[string]any{"id": 42, "name": "raster1", "status": "ready", "folder_id": "f"}})
	server.RegisterAPI(http.MethodDelete, "rasters/42/", apitest.Response{StatusCode: http.StatusNoContent})
	service := rasters.NewService(zap.NewNop(), server.NewClient(testInstance, zap.NewNop()))

	raster, getError := service.Get(context.Background(), "42")
	require.NoError(testInstance, getError)
	require.Equal(testInstance, rasters.Raster{ID: "42", Name: "raster1", Status: rasters.StatusReady, FolderID: "f"}, raster)

	require.NoError(testInstance, service.Delete(context.Background(), "42"))
	require.Len(testInstance, server.APIRequests(http.MethodDelete, "rasters/42/"), 1)

	var inputError apiclient.InvalidInputError
	require.ErrorAs(testInstance, service.Delete(context.Background(), ""), &inputError)
}
