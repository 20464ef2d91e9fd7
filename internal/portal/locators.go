// Package portal drives the Servopa consortium site: login with CAPTCHA
// detection, the per-record bid workflow and the selector tables for every
// control the flows touch.
package portal

import "lanceiro/internal/browser"

// Login page and site-wide controls.
var (
	locUsername   = browser.Css("#representante_cpf_cnpj")
	locPassword   = browser.Css("#representante_senha")
	locLoginBtn   = browser.Css("#btn_representante")
	locLoginError = browser.Xp("//div[@class='error' and contains(text(), 'CPF/CNPJ ou senha inválidos!')]")
	locCaptcha    = browser.Xp("//span[contains(text(), 'Confirme que é humano')]")
	locLogout     = browser.Xp("//a[contains(@href, 'logout')]")
	locHomeLogo   = browser.Xp("//aside[@id='main-nav']//img[@alt='Consórcio Servopa']")
)

// Admin menu and the cota search form.
var (
	locAdminMenu   = browser.Xp("//a[contains(., 'Ferramentas Admin')]")
	locSearchMenu  = []browser.Selector{
		browser.Xp("//a[@href='https://www.consorcioservopa.com.br/vendas/buscar']"),
		browser.Xp("//a[contains(@href, '/vendas/buscar')]"),
	}
	locGroupInput  = browser.Css("#grupo")
	locCotaInput   = browser.Css("#plano")
	locDigitInput  = browser.Css("#digito")
	locSearchBtn   = browser.Css("#btn_busca_usuario")
	locResultBody  = browser.Xp("//tbody")
	locResultRows  = browser.Xp("//tbody//tr[@onclick]")
)

// Statement (extrato) detail page.
var (
	// Fast absolute read of the page title, with the slower structural
	// selectors as fallback when the title text is unexpected.
	locExtratoHeaderAny    = browser.Xp("/html/body/main/section/div[1]/h2")
	locExtratoCancelled    = browser.Xp("//section[@class='main-view']//h2[contains(normalize-space(.), 'Extrato - Cancelado')]")
	locExtratoNormal       = browser.Xp("//section[@class='main-view']//h2[normalize-space(.)='Extrato']")
	locContemplatedMarker  = browser.Xp("//div[contains(@class, 'message-block') and contains(@class, 'error') and contains(., 'Cota já está contemplada')]")
)

// Bid (lance) page.
var (
	locTabSwitcher   = browser.Css(".tab-switcher")
	locFidelityTab   = browser.Xp("//div[@class='tab-switcher']//a[text()='Fidelidade']")
	locActiveTab     = browser.Css(".tab-switcher a.active")
	// Some environments render the input id with an uppercase L.
	locPercentual    = []browser.Selector{
		browser.Css("#tx_Lanliv"),
		browser.Css("#tx_lanliv"),
	}
	locDescontar     = browser.Css("#tx_lanliv_emb")
	locPriorProtocol = browser.Css("#num_protocolo_ant")
	locClientName    = browser.Xp("//span[text()='Consorciado']/following-sibling::h3[1]")

	locSimulate = []browser.Selector{
		browser.Css("#btn_simular"),
		browser.Xp("//a[@id='btn_simular']"),
		browser.Xp("//a[contains(normalize-space(.), 'Simular Lance')]"),
	}
	// Registrar shows up as a <button> or an <a> depending on the screen
	// revision; the absolute path is a last-resort fallback.
	locRegisterBtn      = browser.Xp("//button[contains(normalize-space(.), 'Registrar')]")
	locRegisterLink     = browser.Xp("//a[normalize-space(.)='Registrar']")
	locRegisterAbsolute = browser.Xp("/html/body/main/section/div[2]/div/div/div[2]/form/div[6]/a[1]")
)

// Assembly-block modal (SweetAlert2 or the site's older custom dialog).
var (
	locModalContainer = browser.Css(".swal2-container, .sweet-alert, .swal2-popup")
	locModalText      = browser.Css(".swal2-container .swal2-html-container, .swal2-content, .sweet-alert p")
	locModalOK        = []browser.Selector{
		browser.Css(".swal2-confirm, .confirm"),
		browser.Xp("//button[normalize-space(.)='OK' or normalize-space(.)='Ok' or normalize-space(.)='ok']"),
	}
)
