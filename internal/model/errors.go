// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, farm, rainfall, livestock, task, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	ErrCodePendingApproval     = "PENDING_APPROVAL"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidFarmName     = "INVALID_FARM_NAME"
	ErrCodeFarmNotFound        = "FARM_NOT_FOUND"
	ErrCodeMemberNotFound      = "MEMBER_NOT_FOUND"
	ErrCodeNotFarmOwner        = "NOT_FARM_OWNER"
	ErrCodeOwnerImmutable      = "OWNER_IMMUTABLE"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeInsufficientRole    = "INSUFFICIENT_ROLE"
	ErrCodeStaleMembership     = "STALE_MEMBERSHIP"
	ErrCodeInvitationNotFound  = "INVITATION_NOT_FOUND"
	ErrCodeInvitationResolved  = "INVITATION_ALREADY_RESOLVED"
	ErrCodeUnsupportedFormat   = "UNSUPPORTED_FORMAT"
	ErrCodeNoValidRows         = "NO_VALID_ROWS"
	ErrCodeParseFailed         = "PARSE_FAILED"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeInvalidDate         = "INVALID_DATE"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeRainfallNotFound    = "RAINFALL_NOT_FOUND"
	ErrCodeInvalidLocation     = "INVALID_LOCATION"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeWeatherUnavailable  = "WEATHER_UNAVAILABLE"
	ErrCodeEmailNotConfigured  = "EMAIL_NOT_CONFIGURED"
	ErrCodeEmailFailed         = "EMAIL_FAILED"
	ErrCodeSheepNotFound       = "SHEEP_NOT_FOUND"
	ErrCodeDuplicateTag        = "DUPLICATE_TAG"
	ErrCodeInvalidTag          = "INVALID_TAG"
	ErrCodeInvalidWeight       = "INVALID_WEIGHT"
	ErrCodeInvalidSheepField   = "INVALID_SHEEP_FIELD"
	ErrCodeTaskNotFound        = "TASK_NOT_FOUND"
	ErrCodeInvalidTask         = "INVALID_TASK"
	ErrCodeInvalidHistoryEntry = "INVALID_HISTORY_ENTRY"
)

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、パスワードの再設定を行ってください。",
	}
}

// NewWeakPasswordError はパスワード長不足エラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上である必要があります。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "有効なメールアドレスを入力してください。",
	}
}

// NewInvalidResetTokenError はパスワード再設定トークン不正エラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "パスワード再設定リンクが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "もう一度パスワードの再設定を申請してください。",
	}
}

// NewPendingApprovalError は承認待ちユーザーのアクセスエラーを生成する。
func NewPendingApprovalError() *APIError {
	return &APIError{
		Code:     ErrCodePendingApproval,
		Message:  "アカウントは承認待ちです。",
		Category: "auth",
		Action:   "管理者による承認をお待ちください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidFarmNameError は農場名が空の場合のエラーを生成する。
func NewInvalidFarmNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFarmName,
		Message:  "農場名は必須です。",
		Category: "validation",
		Action:   "農場名を入力してください。",
	}
}

// NewFarmNotFoundError は農場未検出エラーを生成する。
// 非メンバーからのアクセスも存在を明かさないよう同じエラーとする。
func NewFarmNotFoundError(farmID string) *APIError {
	return &APIError{
		Code:     ErrCodeFarmNotFound,
		Message:  fmt.Sprintf("指定された農場が見つかりません: %s", farmID),
		Category: "farm",
		Action:   "農場IDを確認してください。",
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", userID),
		Category: "farm",
		Action:   "メンバー一覧を更新してから再度お試しください。",
	}
}

// NewNotFarmOwnerError はオーナー専用操作を非オーナーが実行した場合のエラーを生成する。
func NewNotFarmOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFarmOwner,
		Message:  "この操作は農場のオーナーのみ実行できます。",
		Category: "farm",
		Action:   "農場のオーナーに依頼してください。",
	}
}

// NewOwnerImmutableError はオーナーの役割変更・削除を試みた場合のエラーを生成する。
func NewOwnerImmutableError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnerImmutable,
		Message:  "オーナーの役割は変更・削除できません。",
		Category: "farm",
		Action:   "オーナー以外のメンバーを指定してください。",
	}
}

// NewInvalidRoleError は不正な役割指定のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効な役割です: %s", role),
		Category: "validation",
		Action:   "役割には editor または viewer を指定してください。",
	}
}

// NewInsufficientRoleError は閲覧者が書き込み操作を行った場合のエラーを生成する。
func NewInsufficientRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientRole,
		Message:  "この農場のデータを変更する権限がありません。",
		Category: "farm",
		Action:   "編集権限をオーナーに依頼してください。",
	}
}

// NewStaleMembershipError は書き込み時点でメンバー情報が変化していた場合のエラーを生成する。
func NewStaleMembershipError() *APIError {
	return &APIError{
		Code:     ErrCodeStaleMembership,
		Message:  "メンバー情報が他の操作により更新されています。",
		Category: "farm",
		Action:   "画面を更新してから再度お試しください。",
	}
}

// NewInvitationNotFoundError は招待未検出エラーを生成する。
func NewInvitationNotFoundError(inviteID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotFound,
		Message:  fmt.Sprintf("指定された招待が見つかりません: %s", inviteID),
		Category: "farm",
		Action:   "招待一覧を更新してください。",
	}
}

// NewInvitationResolvedError は既に応答済みの招待に再度応答した場合のエラーを生成する。
func NewInvitationResolvedError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationResolved,
		Message:  "この招待は既に応答済みです。",
		Category: "farm",
		Action:   "招待一覧を更新してください。",
	}
}

// NewUnsupportedFormatError はインポートファイルの拡張子が未対応の場合のエラーを生成する。
func NewUnsupportedFormatError(ext string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("未対応のファイル形式です: %s", ext),
		Category: "rainfall",
		Action:   ".csv、.txt、.xlsx のいずれかの形式を使用してください。",
	}
}

// NewNoValidRowsError は有効な行が1件もない場合のエラーを生成する。
func NewNoValidRowsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoValidRows,
		Message:  "「fecha」と「cantidad」列を持つ有効な行が見つかりませんでした。",
		Category: "rainfall",
		Action:   "日付列と降水量列の見出しを確認してください。",
	}
}

// NewParseFailedError はファイル解析失敗エラーを生成する。
func NewParseFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  fmt.Sprintf("ファイルの解析に失敗しました: %s", reason),
		Category: "rainfall",
		Action:   "ファイルが破損していないか確認してください。",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "ファイルを分割してからインポートしてください。",
	}
}

// NewInvalidDateError は日付形式エラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", value),
		Category: "validation",
		Action:   "日付は YYYY-MM-DD 形式で入力してください。",
	}
}

// NewInvalidAmountError は降水量不正エラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "降水量は0以上の数値である必要があります。",
		Category: "validation",
		Action:   "ミリメートル単位の数値を入力してください。",
	}
}

// NewRainfallNotFoundError は降水記録未検出エラーを生成する。
func NewRainfallNotFoundError(recordID string) *APIError {
	return &APIError{
		Code:     ErrCodeRainfallNotFound,
		Message:  fmt.Sprintf("指定された降水記録が見つかりません: %s", recordID),
		Category: "rainfall",
		Action:   "一覧を更新してください。",
	}
}

// NewInvalidLocationError は位置情報不正エラーを生成する。
func NewInvalidLocationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLocation,
		Message:  fmt.Sprintf("位置情報を特定できませんでした: %s", reason),
		Category: "validation",
		Action:   "緯度・経度を直接入力するか、Googleマップの共有URLを貼り付けてください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されている地図サービスのURLを入力してください。",
	}
}

// NewWeatherUnavailableError は天気情報取得失敗エラーを生成する。
func NewWeatherUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeWeatherUnavailable,
		Message:  "天気情報を取得できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmailNotConfiguredError はメール送信設定が無い場合のエラーを生成する。
func NewEmailNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfigured,
		Message:  "Email service is not configured",
		Category: "system",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewEmailFailedError はメール送信失敗エラーを生成する。
func NewEmailFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailFailed,
		Message:  "メールの送信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSheepNotFoundError は家畜記録未検出エラーを生成する。
func NewSheepNotFoundError(sheepID string) *APIError {
	return &APIError{
		Code:     ErrCodeSheepNotFound,
		Message:  fmt.Sprintf("指定された家畜が見つかりません: %s", sheepID),
		Category: "livestock",
		Action:   "一覧を更新してください。",
	}
}

// NewDuplicateTagError は耳標番号重複エラーを生成する。
func NewDuplicateTagError(tag string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTag,
		Message:  fmt.Sprintf("耳標番号 %s は既にこの農場で使用されています。", tag),
		Category: "livestock",
		Action:   "別の耳標番号を入力してください。",
	}
}

// NewInvalidTagError は耳標番号が空の場合のエラーを生成する。
func NewInvalidTagError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTag,
		Message:  "耳標番号は必須です。",
		Category: "validation",
		Action:   "耳標番号を入力してください。",
	}
}

// NewInvalidWeightError は体重値不正エラーを生成する。
func NewInvalidWeightError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWeight,
		Message:  "体重は0より大きい数値である必要があります。",
		Category: "validation",
		Action:   "キログラム単位の数値を入力してください。",
	}
}

// NewInvalidSheepFieldError は家畜記録の項目不正エラーを生成する。
func NewInvalidSheepFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSheepField,
		Message:  fmt.Sprintf("無効な値です: %s", field),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidHistoryEntryError は履歴エントリのタイトルが空の場合のエラーを生成する。
func NewInvalidHistoryEntryError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHistoryEntry,
		Message:  "履歴のタイトルは必須です。",
		Category: "validation",
		Action:   "タイトルを入力してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "一覧を更新してください。",
	}
}

// NewInvalidTaskError はタスク入力不正エラーを生成する。
func NewInvalidTaskError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTask,
		Message:  fmt.Sprintf("タスクの入力が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
