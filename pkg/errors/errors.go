// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 推定器の前提条件違反を型付きエラーとして表現し、スタックトレースを付与します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("softclust-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nilを渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DegenerateVarianceWarning はクラスタ内の数値属性の標準偏差が下限値に丸められた場合の警告です。
type DegenerateVarianceWarning struct {
	Cluster   int
	Attribute string
	StdDev    float64 // 丸める前の値（NaNの場合もある）
	Floor     float64
}

func (w *DegenerateVarianceWarning) Error() string {
	return fmt.Sprintf("standard deviation of attribute '%s' in cluster %d is %g, clamped to %g",
		w.Attribute, w.Cluster, w.StdDev, w.Floor)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DegenerateVarianceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("cluster", w.Cluster).
		Str("attribute", w.Attribute).
		Float64("std_dev", w.StdDev).
		Float64("floor", w.Floor).
		Str("type", "DegenerateVarianceWarning")
}

// NewDegenerateVarianceWarning は新しいDegenerateVarianceWarningを作成します。
func NewDegenerateVarianceWarning(cluster int, attribute string, stdDev, floor float64) *DegenerateVarianceWarning {
	return &DegenerateVarianceWarning{Cluster: cluster, Attribute: attribute, StdDev: stdDev, Floor: floor}
}

// EmptyClusterWarning はラップしたクラスタラーが訓練インスタンスを1つも割り当てなかったクラスタがある場合の警告です。
type EmptyClusterWarning struct {
	Clusterer string
	Cluster   int
	Total     int // クラスタ総数
}

func (w *EmptyClusterWarning) Error() string {
	return fmt.Sprintf("%s assigned no training instances to cluster %d of %d; its prior is zero",
		w.Clusterer, w.Cluster, w.Total)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *EmptyClusterWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("clusterer", w.Clusterer).
		Int("cluster", w.Cluster).
		Int("total", w.Total).
		Str("type", "EmptyClusterWarning")
}

// NewEmptyClusterWarning は新しいEmptyClusterWarningを作成します。
func NewEmptyClusterWarning(clusterer string, cluster, total int) *EmptyClusterWarning {
	return &EmptyClusterWarning{Clusterer: clusterer, Cluster: cluster, Total: total}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で推論メソッドを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("softclust: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/attributes
}

func (e *DimensionError) Error() string {
	axisName := "attributes"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("softclust: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "attributes"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// SchemaError はインスタンスや値がデータセットのスキーマに適合しない場合のエラーです。
// 例えば、シンボル属性の値インデックスが宣言された範囲外の場合など。
type SchemaError struct {
	Op        string
	Attribute string
	Reason    string
	Value     interface{}
}

func (e *SchemaError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("softclust: %s: schema mismatch for attribute '%s': %s (got: %v)", e.Op, e.Attribute, e.Reason, e.Value)
	}
	return fmt.Sprintf("softclust: %s: schema mismatch: %s (got: %v)", e.Op, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("attribute", e.Attribute).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(op, attribute, reason string, value interface{}) error {
	err := &SchemaError{Op: op, Attribute: attribute, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ConfigurationError は推定器の必須設定が欠けている場合のエラーです。
type ConfigurationError struct {
	Component string
	Setting   string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("softclust: %s: invalid configuration of '%s': %v", e.Component, e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("setting", e.Setting).
		AnErr("cause", e.Err).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(component, setting string, cause error) error {
	err := &ConfigurationError{Component: component, Setting: setting, Err: cause}
	return errors.WithStack(err)
}

// EstimationError は訓練データから統計量を推定できなかった場合のエラーです。
type EstimationError struct {
	Op      string
	Message string
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("softclust: %s: estimation failed: %s", e.Op, e.Message)
}

// NewEstimationError は新しいEstimationErrorを作成し、スタックトレースを付与します。
func NewEstimationError(op, message string) error {
	err := &EstimationError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("softclust: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("softclust: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError はモデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("softclust: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("softclust: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	数値計算のエラー型
//
// ===========================================================================

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Infなどを検出します。
type NumericalInstabilityError struct {
	Operation string                 // 発生した操作（例: "normal_estimation"）
	Values    []float64              // 問題のある値
	Context   map[string]interface{} // デバッグ用の追加コンテキスト情報
	Iteration int                    // 発生したイテレーション番号（クラスタ番号など）
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("softclust: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoClusterer はラップするクラスタラーが設定されていない場合のエラーです。
	ErrNoClusterer = New("no clusterer has been set")
)
