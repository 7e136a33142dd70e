package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// WelcomeSubject は登録完了メールの件名。
const WelcomeSubject = "¡Tu cuenta en Nimbo está lista!"

// ResetSubject はパスワード再設定メールの件名。
const ResetSubject = "Restablecé tu contraseña de Nimbo"

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<div style="font-family: 'Helvetica Neue', Arial, sans-serif; background:#f6f7fb; padding:40px 0;">
  <table cellpadding="0" cellspacing="0" style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:16px;overflow:hidden;">
    <tr>
      <td style="background:#2e7d32;padding:32px 40px;color:#fff;">
        <h1 style="margin:0;font-size:28px;">¡Bienvenido a Nimbo!</h1>
        <p style="margin:8px 0 0;font-size:16px;">Tu panel inteligente para gestionar el campo.</p>
      </td>
    </tr>
    <tr>
      <td style="padding:32px 40px;color:#172b4d;">
        <p style="font-size:16px;margin:0 0 16px;">Hola {{.Name}},</p>
        <p style="font-size:16px;margin:0 0 16px;line-height:1.6;">
          Tu cuenta en <strong>Nimbo</strong> se creó con éxito. Desde ahora podés registrar lluvias, organizar tareas,
          invitar a tu equipo y seguir el clima hiperlocal de tu campo.
        </p>
        <ul style="margin:0 0 24px;padding-left:20px;color:#51606a;line-height:1.6;">
          <li>Configura tu campo y su ubicación.</li>
          <li>Invita a quienes trabajan con vos.</li>
          <li>Registra las primeras lluvias o tareas del día.</li>
        </ul>
        <a href="{{.LoginURL}}" style="display:inline-block;padding:14px 28px;border-radius:999px;background:#2e7d32;color:#fff;text-decoration:none;font-weight:600;">
          Entrar a mi cuenta
        </a>
      </td>
    </tr>
    <tr>
      <td style="padding:24px 40px;background:#f8f9fb;color:#94a3b8;font-size:12px;text-align:center;">
        © {{.Year}} Nimbo · Gestión Agro Inteligente
      </td>
    </tr>
  </table>
</div>
`))

var resetTemplate = template.Must(template.New("reset").Parse(`
<div style="font-family: 'Helvetica Neue', Arial, sans-serif; padding:32px;">
  <p style="font-size:16px;">Recibimos un pedido para restablecer la contraseña de tu cuenta en Nimbo.</p>
  <p style="font-size:16px;">
    <a href="{{.ResetURL}}" style="display:inline-block;padding:12px 24px;border-radius:999px;background:#2e7d32;color:#fff;text-decoration:none;">
      Elegir una nueva contraseña
    </a>
  </p>
  <p style="font-size:13px;color:#51606a;">El enlace vence en {{.ValidFor}}. Si no lo pediste, ignorá este correo.</p>
</div>
`))

func renderWelcome(name, loginURL string, now time.Time) (string, error) {
	var buf bytes.Buffer
	err := welcomeTemplate.Execute(&buf, struct {
		Name     string
		LoginURL string
		Year     int
	}{name, loginURL, now.Year()})
	if err != nil {
		return "", fmt.Errorf("メール本文の生成に失敗しました: %w", err)
	}
	return buf.String(), nil
}

func renderReset(resetURL string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		ResetURL string
		ValidFor string
	}{resetURL, humanDuration(validFor)})
	if err != nil {
		return "", fmt.Errorf("メール本文の生成に失敗しました: %w", err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	default:
		return fmt.Sprintf("%d minutos", int(d.Minutes()))
	}
}
