package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/grade"
	"github.com/Veraticus/paperflow/internal/model"
)

func testSettings() config.Settings {
	return config.Settings{
		Drive: config.DriveSettings{
			InboxFolderID:    "inbox",
			PhotoFolderID:    "photos",
			ChildrenFolderID: "children-edu",
			CategoryFolders: map[string]string{
				"10_マネー・税務": "money-tax",
				"90_ライブラリ":  "library",
			},
		},
		Grades: config.GradeSettings{
			// The triplets are in the -3 class (くるみ組) in fiscal 2025.
			BaseFiscalYear:  2025,
			GraduationGrade: 12,
			Children: []config.Child{
				{Name: "ビクトル", BaseGrade: 3, Aliases: []string{"ビクトル", "Victor"}},
				{Name: "遥香", BaseGrade: -3, Aliases: []string{"遥香", "はるか", "Haruka"}},
				{Name: "アンナ", BaseGrade: -3, Aliases: []string{"アンナ", "Anna"}},
				{Name: "ミハイル", BaseGrade: -3, Aliases: []string{"ミハイル", "Mikhail"}},
			},
			PreschoolClasses: []config.PreschoolClass{
				{Code: -3, Name: "くるみ組", Emoji: "🐿️"},
			},
			SharedGroups: []config.SharedGroup{
				{
					Children:   []string{"遥香", "アンナ", "ミハイル"},
					FolderName: "Haruka-Anna-Mischa",
					Label:      "くるみ組",
					Emoji:      "🐿️",
				},
			},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)
}

func newTestEngine(settings config.Settings, deps Deps) *SortingEngine {
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	return New(deps, settings, grade.NewResolver(settings.Grades), nil)
}

func inboxDoc(name, mimeType string) *model.Document {
	return &model.Document{
		ID:       "file-1",
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{"inbox"},
		WebLink:  "https://vault.example/file-1",
	}
}

func TestProcessUnsupportedMimeTypeSkips(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("notes.txt", "text/plain")}
	classifier := &mockClassifier{}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSkipped, outcome.Status)
	assert.Empty(t, vault.renamedTo, "no rename may be issued for skipped documents")
	assert.Empty(t, vault.movedTo, "no move may be issued for skipped documents")
	assert.Zero(t, classifier.classifyCalls)
}

func TestProcessDownloadFailureIsError(t *testing.T) {
	vault := &mockVault{
		doc:   inboxDoc("scan.jpg", "image/jpeg"),
		dlErr: errors.New("503 after 5 attempts"),
	}
	classifier := &mockClassifier{}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.Error(t, err)

	assert.Equal(t, model.StatusError, outcome.Status)
	assert.Zero(t, classifier.classifyCalls, "no classification may be attempted after a failed download")
	assert.Empty(t, vault.movedTo)
}

func TestProcessNullClassificationIsError(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), data: []byte("img")}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: &mockClassifier{classifyErr: errors.New("all tiers failed")},
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.Error(t, err)
	assert.Equal(t, model.StatusError, outcome.Status)
	assert.Empty(t, vault.movedTo)
}

func TestProcessAlreadyProcessedSkips(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), processed: true}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: &mockClassifier{},
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, outcome.Status)
}

func TestProcessOutsideInboxSkips(t *testing.T) {
	doc := inboxDoc("scan.jpg", "image/jpeg")
	doc.Parents = []string{"somewhere-else"}
	vault := &mockVault{doc: doc}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: &mockClassifier{},
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, outcome.Status)
}

func TestProcessSharedClassResolvesGroupFolder(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan_0412.pdf", "application/pdf"), data: []byte("pdf")}
	converter := &mockConverter{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:         model.CategoryChildrenEdu,
			SubCategory:      model.SubCategoryNewsletter,
			ChildName:        "",
			TargetGradeClass: "くるみ組",
			Date:             "20250510",
			Summary:          "遠足のお知らせ",
			ConfidenceScore:  0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  converter,
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Equal(t, 1, converter.converts, "PDF input must go through first-page conversion")
	assert.Equal(t, []string{"Haruka-Anna-Mischa", "2025年度", "01_お便り・スケジュール"}, vault.ensuredPath,
		"the shared-group folder must win over any individual child folder")
	assert.Equal(t, "children-edu/Haruka-Anna-Mischa/2025年度/01_お便り・スケジュール", vault.movedTo)
	assert.Equal(t, "20250510_遠足のお知らせ.pdf", vault.renamedTo)
}

func TestProcessUnidentifiedChildFilesUnderSharedFolder(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), data: []byte("img")}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryChildrenEdu,
			Date:            "20250110",
			Summary:         "学校だより",
			ConfidenceScore: 0.85,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusProcessed, outcome.Status)
	// January dates belong to the previous fiscal year.
	assert.Equal(t, []string{"共通・学校全般", "2024年度", "01_お便り・スケジュール"}, vault.ensuredPath)
}

func TestProcessPhotoCategoryGoesToPhotoFolder(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("IMG_0001.jpg", "image/jpeg"), data: []byte("img")}
	photos := &mockPhotos{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryPhotoOther,
			Date:            "20250510",
			Summary:         "家族写真",
			IsPhoto:         true,
			ConfidenceScore: 0.95,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Photos:     photos,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Equal(t, "photos", vault.movedTo)
	require.Len(t, photos.descriptions, 1)
	assert.Equal(t, "【50_写真・その他】20250510_家族写真", photos.descriptions[0])
}

func TestProcessRecordsSubCategoryArchivesPhoto(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), data: []byte("img")}
	photos := &mockPhotos{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryChildrenEdu,
			SubCategory:     model.SubCategoryRecords,
			ChildName:       "ビクトル",
			Date:            "20250510",
			Summary:         "図工の作品",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Photos:     photos,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Len(t, photos.descriptions, 1)
}

func TestProcessUnknownCategoryFallsBackToPhotoFolder(t *testing.T) {
	// CategoryProjectAsset has no folder configured in testSettings.
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), data: []byte("img")}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryProjectAsset,
			Date:            "20250510",
			Summary:         "修理記録",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Equal(t, "photos", vault.movedTo)
}

func TestProcessRenameFailureIsNonFatal(t *testing.T) {
	vault := &mockVault{
		doc:       inboxDoc("scan.jpg", "image/jpeg"),
		data:      []byte("img"),
		renameErr: errors.New("409 conflict"),
	}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryMoneyTax,
			Date:            "20250510",
			Summary:         "電気料金",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Equal(t, "money-tax", vault.movedTo)
}

func TestProcessMoveFailureIsFatal(t *testing.T) {
	vault := &mockVault{
		doc:     inboxDoc("scan.jpg", "image/jpeg"),
		data:    []byte("img"),
		moveErr: errors.New("insufficient permissions"),
	}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryMoneyTax,
			Date:            "20250510",
			Summary:         "電気料金",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.Error(t, err)
	assert.Equal(t, model.StatusError, outcome.Status)
}

func TestProcessFailedDocumentStaysRetryable(t *testing.T) {
	vault := &mockVault{
		doc:     inboxDoc("scan.jpg", "image/jpeg"),
		data:    []byte("img"),
		moveErr: errors.New("503 backend error"),
	}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryMoneyTax,
			Date:            "20250510",
			Summary:         "電気料金",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.Error(t, err)
	assert.Equal(t, model.StatusError, outcome.Status)
	assert.False(t, vault.marked, "a failed run must not set the processed marker")

	// The transient move failure clears; redelivery must retry, not skip.
	vault.moveErr = nil
	outcome, err = eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Equal(t, "money-tax", vault.movedTo)
	assert.True(t, vault.marked)
}

func TestProcessMarksOnlyAfterFiling(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.jpg", "image/jpeg"), data: []byte("img")}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryMoneyTax,
			Date:            "20250510",
			Summary:         "電気料金",
			ConfidenceScore: 0.9,
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.True(t, vault.marked)

	// The marker now short-circuits a duplicate delivery.
	outcome, err = eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, outcome.Status)
}

func TestProcessConversionFailureIsFatal(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("scan.pdf", "application/pdf"), data: []byte("pdf")}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{err: errors.New("corrupt xref table")},
		Classifier: &mockClassifier{},
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.Error(t, err)
	assert.Equal(t, model.StatusError, outcome.Status)
}

func TestProcessRegistersScheduleWithGroupPrefix(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("letter.pdf", "application/pdf"), data: []byte("pdf")}
	calendar := &mockCalendar{}
	tasks := &mockTasks{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:         model.CategoryChildrenEdu,
			SubCategory:      model.SubCategoryNewsletter,
			TargetGradeClass: "くるみ組",
			Date:             "20250510",
			Summary:          "運動会のお知らせ",
			ConfidenceScore:  0.9,
		},
		schedule: &model.Schedule{
			Events: []model.Event{
				{Title: "運動会", Date: "2025-06-01", StartTime: "09:00"},
			},
			Tasks: []model.Task{
				{Title: "お弁当の準備", DueDate: "2025-06-01"},
				{Title: "参加申込書の提出", DueDate: "2025-05-20", Notes: "白い封筒で"},
				{Title: "水筒の準備", DueDate: "2025-06-01", Notes: "氷入り"},
			},
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Calendar:   calendar,
		Tasks:      tasks,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)

	require.Len(t, calendar.created, 1)
	assert.Equal(t, "[🐿️] 運動会", calendar.created[0].event.Title)
	assert.Contains(t, calendar.created[0].notes, "https://vault.example/file-1")

	// Tasks sharing a due date are merged: 2025-06-01 twice, 2025-05-20 once.
	require.Len(t, tasks.created, 2)
	assert.Equal(t, "[🐿️] お弁当の準備 / 水筒の準備", tasks.created[0].task.Title)
	assert.Equal(t, "2025-06-01", tasks.created[0].task.DueDate)
	assert.Equal(t, "[🐿️] 参加申込書の提出", tasks.created[1].task.Title)
	assert.Contains(t, tasks.created[1].notes, "白い封筒で")
}

func TestProcessSingleChildPrefixPrefersGradeLabel(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("letter.jpg", "image/jpeg"), data: []byte("img")}
	calendar := &mockCalendar{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryChildrenEdu,
			ChildName:       "ビクトル", // grade 3 in fiscal 2025
			Date:            "20250510",
			Summary:         "授業参観",
			ConfidenceScore: 0.9,
		},
		schedule: &model.Schedule{
			Events: []model.Event{{Title: "授業参観", Date: "2025-05-20"}},
		},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Calendar:   calendar,
	})

	_, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)

	require.Len(t, calendar.created, 1)
	assert.Equal(t, "[小3] 授業参観", calendar.created[0].event.Title)
}

func TestProcessEmptyScheduleCreatesNothing(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("letter.jpg", "image/jpeg"), data: []byte("img")}
	calendar := &mockCalendar{}
	tasks := &mockTasks{}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryChildrenEdu,
			ChildName:       "ビクトル",
			Date:            "20250510",
			Summary:         "お知らせ",
			ConfidenceScore: 0.9,
		},
		schedule: &model.Schedule{},
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Calendar:   calendar,
		Tasks:      tasks,
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
	assert.Empty(t, calendar.created)
	assert.Empty(t, tasks.created)
}

func TestProcessScheduleFailureDoesNotAffectOutcome(t *testing.T) {
	vault := &mockVault{doc: inboxDoc("letter.jpg", "image/jpeg"), data: []byte("img")}
	classifier := &mockClassifier{
		result: &model.ClassificationResult{
			Category:        model.CategoryChildrenEdu,
			ChildName:       "ビクトル",
			Date:            "20250510",
			Summary:         "お知らせ",
			ConfidenceScore: 0.9,
		},
		scheduleErr: errors.New("all tiers failed"),
	}
	eng := newTestEngine(testSettings(), Deps{
		Vault:      vault,
		Converter:  &mockConverter{},
		Classifier: classifier,
		Calendar:   &mockCalendar{},
		Tasks:      &mockTasks{},
	})

	outcome, err := eng.Process(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, outcome.Status)
}

func TestNewFileName(t *testing.T) {
	eng := newTestEngine(testSettings(), Deps{
		Vault:      &mockVault{},
		Converter:  &mockConverter{},
		Classifier: &mockClassifier{},
	})

	tests := []struct {
		name     string
		result   model.ClassificationResult
		original string
		want     string
	}{
		{
			name:     "date and summary",
			result:   model.ClassificationResult{Date: "20250510", Summary: "遠足のお知らせ"},
			original: "scan_0412.jpg",
			want:     "20250510_遠足のお知らせ.jpg",
		},
		{
			name:     "missing extension defaults to pdf",
			result:   model.ClassificationResult{Date: "20250510", Summary: "お知らせ"},
			original: "scan",
			want:     "20250510_お知らせ.pdf",
		},
		{
			name:     "missing date uses the clock",
			result:   model.ClassificationResult{Summary: "お知らせ"},
			original: "scan.png",
			want:     "20250512_お知らせ.png",
		},
		{
			name:     "missing summary uses a placeholder",
			result:   model.ClassificationResult{Date: "20250510"},
			original: "scan.png",
			want:     "20250510_document.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eng.newFileName(&tt.result, tt.original))
		})
	}
}

func TestMergeTasksByDueDate(t *testing.T) {
	tasks := []model.Task{
		{Title: "a", DueDate: "2025-05-20", Notes: "n1"},
		{Title: "b", DueDate: "2025-05-21"},
		{Title: "c", DueDate: "2025-05-20", Notes: "n2"},
	}

	merged := mergeTasksByDueDate(tasks)
	require.Len(t, merged, 2)
	assert.Equal(t, "a / c", merged[0].Title)
	assert.Equal(t, "n1\nn2", merged[0].Notes)
	assert.Equal(t, "b", merged[1].Title)
}
